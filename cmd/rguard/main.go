package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openrport/rguard/client/monitoring"
	"github.com/openrport/rguard/server/chconfig"
	chshare "github.com/openrport/rguard/share"
	"github.com/openrport/rguard/share/logger"
)

const envPrefix = "RGUARD"

var agentHelp = `
  Usage: rguard [options]

  Examples:

    ./rguard --api-address=127.0.0.1:7171
    starts the agent and serves the API on localhost

    ./rguard -c /etc/rguard/rguard.conf --service install
    installs the agent as a system service using the given config

  Options:

    --config, -c, Path to the configuration file. Defaults to rguard.conf in the working
    directory. See rguard.example.conf for all settings.

    --api-address, Address of the HTTP and WebSocket API, e.g. 127.0.0.1:7171.
    An empty value disables the listener.

    --db, Path of the SQLite history database.

    --log-file, -l, Writes the log to a file instead of stdout.

    --verbose, -v, Log level: error, info or debug.

    --service, Manages the system service: install, uninstall, start, stop or status.

    --help, -h, Prints this help.

    --version, Prints the version.

  Every setting can also be passed as environment variable prefixed with RGUARD_, e.g.
  RGUARD_API_ADDRESS or RGUARD_DATABASE_PATH. RGUARD_REPUTATION_API_KEY sets the api key
  of the reputation service.
`

var (
	RootCmd = &cobra.Command{
		Use:     "rguard",
		Version: chshare.BuildVersion,
		Run:     runMain,
	}

	cfgPath    *string
	svcCommand *string
	viperCfg   *viper.Viper
	cfg        = &chconfig.Config{}
)

func init() {
	pFlags := RootCmd.PersistentFlags()

	cfgPath = pFlags.StringP("config", "c", "", "")
	pFlags.StringP("log-file", "l", "", "")
	pFlags.StringP("verbose", "v", "", "")
	pFlags.String("api-address", "", "")
	pFlags.String("db", "", "")
	svcCommand = pFlags.String("service", "", "")

	RootCmd.SetUsageFunc(func(*cobra.Command) error {
		fmt.Print(agentHelp)
		os.Exit(1)
		return nil
	})

	bindPFlags(pFlags)
}

// flagKeys maps CLI flags to config keys.
var flagKeys = map[string]string{
	"log-file":    "logging.log_file",
	"verbose":     "logging.log_level",
	"api-address": "api.address",
	"db":          "database.path",
}

func bindPFlags(pFlags *pflag.FlagSet) {
	viperCfg = viper.New()
	viperCfg.SetConfigType("toml")

	viperCfg.SetDefault("logging.log_level", "info")
	viperCfg.SetDefault("api.address", chconfig.DefaultAPIAddress)

	for flag, key := range flagKeys {
		// _ is used to ignore errors to pass linter check
		_ = viperCfg.BindPFlag(key, pFlags.Lookup(flag))
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func decodeAndValidateConfig(mLog *logger.MemLogger) error {
	if *cfgPath != "" {
		viperCfg.SetConfigFile(*cfgPath)
	} else {
		viperCfg.AddConfigPath(".")
		viperCfg.SetConfigName("rguard.conf")
	}

	*cfg = chconfig.Config{Monitoring: monitoring.DefaultConfig()}
	if err := chshare.DecodeViperConfig(viperCfg, cfg, nil); err != nil {
		return err
	}

	return cfg.ParseAndValidate(mLog)
}

func runMain(*cobra.Command, []string) {
	if *svcCommand != "" {
		if err := handleSvcCommand(*svcCommand, *cfgPath); err != nil {
			log.Fatal(err)
		}
		return
	}

	mLog := logger.NewMemLogger()
	if err := decodeAndValidateConfig(mLog); err != nil {
		log.Fatal(err)
	}

	if err := cfg.Logging.LogOutput.Start(); err != nil {
		log.Fatal(err)
	}
	defer cfg.Logging.LogOutput.Shutdown()

	l := logger.NewLogger("rguard", cfg.Logging.LogOutput, cfg.Logging.LogLevel)
	mLog.Flush(l)

	a, err := newAgent(cfg, l)
	if err != nil {
		l.Errorf("failed to start: %v", err)
		log.Fatal(err)
	}

	if !service.Interactive() {
		if err := runAsService(a, *cfgPath); err != nil {
			l.Errorf("service stopped with an error: %v", err)
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		l.Errorf("%v", err)
		log.Fatal(err)
	}
}
