package chconfig

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chshare "github.com/openrport/rguard/share"
	"github.com/openrport/rguard/share/logger"
)

func TestLoadingExampleConf(t *testing.T) {
	t.Setenv(EnvReputationAPIKey, "")
	viperCfg := viper.New()
	viperCfg.SetConfigType("toml")
	viperCfg.SetConfigFile("../../rguard.example.conf")
	cfg := &Config{}

	err := chshare.DecodeViperConfig(viperCfg, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, logger.LogLevelInfo, cfg.Logging.LogLevel)
	assert.Equal(t, "127.0.0.1:7171", cfg.API.Address)
	assert.Equal(t, "<YOUR_TOKEN>", cfg.API.AuthToken)
	assert.Equal(t, []string{"^docker", "^veth"}, cfg.Monitoring.NetInterfaceExcludeRegex)
	assert.False(t, cfg.Monitoring.GPUEnabled)
	assert.Equal(t, []string{"system", "kernel"}, cfg.EventLog.Sources)
	assert.Equal(t, 200, cfg.EventLog.MaxCount)
	assert.Equal(t, []string{"/usr/bin/nmap"}, cfg.Scanners.Network.NmapPaths)
	assert.Equal(t, 5*time.Minute, cfg.Scanners.Network.Timeout)
	assert.Equal(t, time.Hour, cfg.Reputation.CacheTTL)
	assert.Equal(t, "/var/lib/rguard/rguard.db", cfg.Database.Path)
	assert.Equal(t, 720*time.Hour, cfg.Database.Retention)
	assert.Equal(t, 10000, cfg.Database.QueueSize)

	mLog := logger.NewMemLogger()
	require.NoError(t, cfg.ParseAndValidate(mLog))
}

func TestDecodeFromReader(t *testing.T) {
	const conf = `
[logging]
  log_level = "debug"
[api]
  address = "0.0.0.0:9000"
  cors = ["https://example.com", "*"]
[database]
  retention = "48h"
`
	viperCfg := viper.New()
	viperCfg.SetConfigType("toml")
	cfg := &Config{}

	err := chshare.DecodeViperConfig(viperCfg, cfg, strings.NewReader(conf))
	require.NoError(t, err)

	assert.Equal(t, logger.LogLevelDebug, cfg.Logging.LogLevel)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Address)
	assert.Equal(t, []string{"https://example.com", "*"}, cfg.API.CORS)
	assert.Equal(t, 48*time.Hour, cfg.Database.Retention)
}
