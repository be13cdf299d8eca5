package main

import (
	"context"
	"runtime"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/eventlog"
	"github.com/openrport/rguard/client/monitoring"
	"github.com/openrport/rguard/client/reputation"
	"github.com/openrport/rguard/client/scanners/file"
	"github.com/openrport/rguard/client/scanners/network"
	"github.com/openrport/rguard/client/scanners/url"
	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/server/chconfig"
	"github.com/openrport/rguard/server/history"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
	"github.com/openrport/rguard/share/pubsub"
	"github.com/openrport/rguard/share/registry"
)

const (
	keyCmdRunner      registry.Key = "system.cmd-runner"
	keySystemInfo     registry.Key = "system.info"
	keyCollector      registry.Key = "monitoring.collector"
	keyEventReader    registry.Key = "eventlog.reader"
	keyReputation     registry.Key = "reputation.client"
	keyNetworkScanner registry.Key = "scanners.network"
	keyFileScanner    registry.Key = "scanners.file"
	keyURLScanner     registry.Key = "scanners.url"
	keyRepository     registry.Key = "history.repository"
	keyHistoryWriter  registry.Key = "history.writer"
	keyHub            registry.Key = "pubsub.hub"
	keyBridge         registry.Key = "bridge"
)

// wire registers every component of the agent. Components holding state (caches, open
// files, goroutines) are built here once and registered as instances, stateless ones are
// registered as factories.
func wire(cfg *chconfig.Config, log *logger.Logger) (*registry.Registry, error) {
	r := registry.New()

	runner := system.NewCmdRunner(log.Fork("cmd"))
	r.RegisterInstance(keyCmdRunner, runner)
	sysInfo := system.NewSystemInfo()
	r.RegisterInstance(keySystemInfo, sysInfo)

	r.RegisterInstance(keyCollector, monitoring.NewCollector(log.Fork("monitoring"), cfg.Monitoring, sysInfo, runner))
	r.Register(keyEventReader, func(r *registry.Registry) (interface{}, error) {
		cmdRunner, err := registry.ResolveAs[system.CmdRunner](r, keyCmdRunner)
		if err != nil {
			return nil, err
		}
		l := log.Fork("eventlog")
		return eventlog.NewReader(eventlog.NewPlatformReader(cmdRunner, l), l), nil
	})

	if cfg.Reputation.Enabled() {
		r.RegisterInstance(keyReputation, reputation.NewClient(cfg.Reputation, log.Fork("reputation")))
	}

	r.RegisterInstance(keyNetworkScanner, network.NewScanner(runner, cfg.Scanners.Network, log.Fork("scanner-network")))
	r.Register(keyFileScanner, func(r *registry.Registry) (interface{}, error) {
		client, err := resolveReputation(r)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return file.NewScanner(nil, log.Fork("scanner-file")), nil
		}
		return file.NewScanner(client, log.Fork("scanner-file")), nil
	})
	r.Register(keyURLScanner, func(r *registry.Registry) (interface{}, error) {
		client, err := resolveReputation(r)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return url.NewScanner(nil, log.Fork("scanner-url")), nil
		}
		return url.NewScanner(client, log.Fork("scanner-url")), nil
	})

	repo, err := history.NewSqliteProvider(cfg.Database.Path, log.Fork("history"))
	if err != nil {
		return nil, err
	}
	r.RegisterInstance(keyRepository, repo)

	hub := pubsub.NewHub(log.Fork("pubsub"))
	r.RegisterInstance(keyHub, hub)

	writer := history.NewWriter(
		log.Fork("history-writer"),
		repo,
		history.WriterOptions{QueueSize: cfg.Database.QueueSize},
		hub.PublishAdvisory,
	)
	r.RegisterInstance(keyHistoryWriter, writer)

	b, err := buildBridge(r, cfg, log.Fork("bridge"))
	if err != nil {
		_ = writer.Close()
		_ = repo.Close()
		return nil, err
	}
	r.RegisterInstance(keyBridge, b)

	return r, nil
}

// resolveReputation returns nil without an error when lookups are disabled.
func resolveReputation(r *registry.Registry) (*reputation.Client, error) {
	client, err := registry.ResolveAs[*reputation.Client](r, keyReputation)
	if errors.Is(err, registry.ErrNotRegistered) {
		return nil, nil
	}
	return client, err
}

func buildBridge(r *registry.Registry, cfg *chconfig.Config, log *logger.Logger) (*bridge.Bridge, error) {
	collector, err := registry.ResolveAs[*monitoring.Collector](r, keyCollector)
	if err != nil {
		return nil, err
	}
	events, err := registry.ResolveAs[*eventlog.Reader](r, keyEventReader)
	if err != nil {
		return nil, err
	}
	repo, err := registry.ResolveAs[history.Repository](r, keyRepository)
	if err != nil {
		return nil, err
	}
	writer, err := registry.ResolveAs[*history.Writer](r, keyHistoryWriter)
	if err != nil {
		return nil, err
	}
	hub, err := registry.ResolveAs[*pubsub.Hub](r, keyHub)
	if err != nil {
		return nil, err
	}
	runners, err := scanRunners(r)
	if err != nil {
		return nil, err
	}

	return bridge.New(bridge.Deps{
		Collector: collector,
		Events:    events,
		Writer:    writer,
		History:   repo,
		Hub:       hub,
		Runners:   runners,
	}, bridge.Options{
		EventSources: cfg.EventLog.Sources,
		EventMax:     cfg.EventLog.MaxCount,
	}, log), nil
}

func scanRunners(r *registry.Registry) (map[models.ScanType]bridge.ScanRunner, error) {
	networkScanner, err := registry.ResolveAs[*network.Scanner](r, keyNetworkScanner)
	if err != nil {
		return nil, err
	}
	fileScanner, err := registry.ResolveAs[*file.Scanner](r, keyFileScanner)
	if err != nil {
		return nil, err
	}
	urlScanner, err := registry.ResolveAs[*url.Scanner](r, keyURLScanner)
	if err != nil {
		return nil, err
	}

	return map[models.ScanType]bridge.ScanRunner{
		models.ScanTypeNetwork: bridge.ScanRunnerFunc(func(ctx context.Context, args bridge.ScanArgs) *models.ScanRecord {
			mode, err := network.ParseMode(args.Mode)
			if err != nil {
				// the scanner rejects the unknown mode with a diagnostic finding
				mode = network.Mode(args.Mode)
			}
			return networkScanner.Scan(ctx, args.Target, mode)
		}),
		models.ScanTypeFile: bridge.ScanRunnerFunc(func(ctx context.Context, args bridge.ScanArgs) *models.ScanRecord {
			return fileScanner.Scan(ctx, args.Target)
		}),
		models.ScanTypeURL: bridge.ScanRunnerFunc(func(ctx context.Context, args bridge.ScanArgs) *models.ScanRecord {
			return urlScanner.Scan(ctx, args.Target)
		}),
	}, nil
}

func platformName() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
