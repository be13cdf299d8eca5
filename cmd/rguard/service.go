package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kardianos/service"

	chshare "github.com/openrport/rguard/share"
)

var svcConfig = &service.Config{
	Name:        "rguard",
	DisplayName: "rguard endpoint agent",
	Description: "Collects endpoint telemetry and event logs and runs on-demand security scans.",
}

func handleSvcCommand(svcCommand string, configPath string) error {
	svc, err := getService(nil, configPath)
	if err != nil {
		return err
	}

	return chshare.HandleServiceCommand(svc, svcCommand, os.Stdout)
}

func runAsService(a *agent, configPath string) error {
	svc, err := getService(a, configPath)
	if err != nil {
		return err
	}

	return svc.Run()
}

func getService(a *agent, configPath string) (service.Service, error) {
	if configPath != "" {
		absConfigPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		svcConfig.Arguments = []string{"-c", absConfigPath}
	}
	return service.New(&serviceWrapper{agent: a}, svcConfig)
}

type serviceWrapper struct {
	agent  *agent
	cancel context.CancelFunc
	done   chan error
}

func (w *serviceWrapper) Start(service.Service) error {
	if w.agent == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan error, 1)
	go func() {
		err := w.agent.Run(ctx)
		if err != nil {
			w.agent.log.Errorf("%v", err)
		}
		w.done <- err
	}()
	return nil
}

func (w *serviceWrapper) Stop(service.Service) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	return <-w.done
}
