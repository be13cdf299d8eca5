package main

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/openrport/rguard/client/monitoring"
	chserver "github.com/openrport/rguard/server"
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/server/chconfig"
	"github.com/openrport/rguard/server/history"
	"github.com/openrport/rguard/server/scheduler"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/registry"
)

// agent owns the long-lived components resolved from the registry.
type agent struct {
	log       *logger.Logger
	config    *chconfig.Config
	repo      history.Repository
	collector *monitoring.Collector
	bridge    *bridge.Bridge
	api       *chserver.APIListener
	scheduler *scheduler.Scheduler
}

func newAgent(cfg *chconfig.Config, log *logger.Logger) (*agent, error) {
	r, err := wire(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &agent{
		log:       log,
		config:    cfg,
		scheduler: scheduler.New(log.Fork("scheduler")),
	}
	if a.bridge, err = registry.ResolveAs[*bridge.Bridge](r, keyBridge); err != nil {
		return nil, err
	}
	if a.repo, err = registry.ResolveAs[history.Repository](r, keyRepository); err != nil {
		return nil, err
	}
	if a.collector, err = registry.ResolveAs[*monitoring.Collector](r, keyCollector); err != nil {
		return nil, err
	}

	cleanup := history.NewCleanupTask(log.Fork("history-cleanup"), a.repo, cfg.Database.Retention)
	if err := a.scheduler.Add("history-cleanup", cfg.Database.CleanupSchedule, cleanup); err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.API.Enabled() {
		a.api, err = chserver.NewAPIListener(a.bridge, cfg, log.Fork("api-listener"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *agent) Start() error {
	a.log.Infof("rguard starting on %s", platformName())
	a.scheduler.Start()
	if a.api != nil {
		if err := a.api.Start(a.config.API.Address); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the agent and blocks until ctx is done or the API listener fails, then
// closes everything.
func (a *agent) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		_ = a.Close()
		return err
	}

	apiStopped := make(chan error, 1)
	if a.api != nil {
		go func() {
			apiStopped <- a.api.Wait()
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		a.log.Infof("shutting down")
	case err := <-apiStopped:
		if err != nil {
			a.log.Errorf("API listener stopped: %v", err)
			result = multierror.Append(result, err)
		}
	}

	if err := a.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// Close stops the listener first so no new commands arrive, then the background work and
// finally the database.
func (a *agent) Close() error {
	var result error
	if a.api != nil {
		if err := a.api.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.scheduler.Stop()
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.collector != nil {
		a.collector.Close()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
