package chconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrport/rguard/client/reputation"
	"github.com/openrport/rguard/client/scanners/network"
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/server/history"
	"github.com/openrport/rguard/share/logger"
)

func TestParseAndValidateDefaults(t *testing.T) {
	t.Setenv(EnvReputationAPIKey, "")
	cfg := &Config{
		API:      APIConfig{Address: DefaultAPIAddress},
		EventLog: EventLogConfig{Sources: []string{"system"}},
	}

	mLog := logger.NewMemLogger()
	require.NoError(t, cfg.ParseAndValidate(mLog))

	assert.Equal(t, int64(DefaultMaxRequestBytes), cfg.API.MaxRequestBytes)
	assert.Equal(t, []string{}, cfg.API.CORS)
	assert.Equal(t, bridge.DefaultEventMax, cfg.EventLog.MaxCount)
	assert.Equal(t, network.DefaultTimeout, cfg.Scanners.Network.Timeout)
	assert.Equal(t, reputation.DefaultBaseURL, cfg.Reputation.BaseURL)
	assert.Equal(t, reputation.DefaultTimeout, cfg.Reputation.Timeout)
	assert.Equal(t, reputation.DefaultCacheTTL, cfg.Reputation.CacheTTL)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, history.DefaultRetention, cfg.Database.Retention)
	assert.Equal(t, history.DefaultCleanupSchedule, cfg.Database.CleanupSchedule)
	assert.Equal(t, history.DefaultQueueSize, cfg.Database.QueueSize)
	// empty auth token and missing api key are reported
	assert.Equal(t, 2, mLog.Len())
}

func TestParseAndValidateReputationKeyFromEnv(t *testing.T) {
	t.Setenv(EnvReputationAPIKey, "env-key")
	cfg := &Config{Reputation: reputation.Config{APIKey: "file-key"}}

	require.NoError(t, cfg.ParseAndValidate(logger.NewMemLogger()))

	assert.Equal(t, "env-key", cfg.Reputation.APIKey)
	assert.True(t, cfg.Reputation.Enabled())
}

func TestParseAndValidateErrors(t *testing.T) {
	t.Setenv(EnvReputationAPIKey, "")
	testCases := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "bad api address",
			config:  Config{API: APIConfig{Address: "localhost"}},
			wantErr: `invalid api address "localhost"`,
		},
		{
			name:    "cert without key",
			config:  Config{API: APIConfig{Address: DefaultAPIAddress, CertFile: "server.crt"}},
			wantErr: "when 'cert_file' is set, 'key_file' must be set as well",
		},
		{
			name:    "key without cert",
			config:  Config{API: APIConfig{Address: DefaultAPIAddress, KeyFile: "server.key"}},
			wantErr: "when 'key_file' is set, 'cert_file' must be set as well",
		},
		{
			name:    "missing cert files",
			config:  Config{API: APIConfig{Address: DefaultAPIAddress, CertFile: "missing.crt", KeyFile: "missing.key"}},
			wantErr: "invalid 'cert_file', 'key_file'",
		},
		{
			name:    "negative request size",
			config:  Config{API: APIConfig{Address: DefaultAPIAddress, MaxRequestBytes: -1}},
			wantErr: "max_request_bytes can not be negative",
		},
		{
			name: "bad interface regex",
			config: func() Config {
				c := Config{}
				c.Monitoring.NetInterfaceExcludeRegex = []string{"("}
				return c
			}(),
			wantErr: "invalid 'net_interface_exclude_regex'",
		},
		{
			name:    "negative nmap timeout",
			config:  Config{Scanners: ScannersConfig{Network: network.Config{Timeout: -time.Second}}},
			wantErr: "scanners.network timeout can not be negative",
		},
		{
			name:    "relative reputation url",
			config:  Config{Reputation: reputation.Config{BaseURL: "/api/v3"}},
			wantErr: "reputation base_url must be an absolute http(s) url",
		},
		{
			name:    "negative retention",
			config:  Config{Database: DatabaseConfig{Retention: -time.Hour}},
			wantErr: "database retention can not be negative",
		},
		{
			name:    "bad cleanup schedule",
			config:  Config{Database: DatabaseConfig{CleanupSchedule: "every day"}},
			wantErr: `invalid database cleanup_schedule "every day"`,
		},
		{
			name:    "negative queue size",
			config:  Config{Database: DatabaseConfig{QueueSize: -1}},
			wantErr: "database queue_size can not be negative",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.ParseAndValidate(logger.NewMemLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseAndValidateCORS(t *testing.T) {
	mLog := logger.NewMemLogger()

	got := parseAndValidateCORS(mLog, []string{
		"*",
		"http://localhost:3000",
		"https://example.com",
		"ftp://example.com",
		"https://example.com/path",
		"https://",
	})

	assert.Equal(t, []string{"*", "http://localhost:3000", "https://example.com"}, got)
	assert.Equal(t, 3, mLog.Len())
}

func TestAPIDisabled(t *testing.T) {
	t.Setenv(EnvReputationAPIKey, "key")
	cfg := &Config{API: APIConfig{CertFile: "ignored.crt"}}

	require.NoError(t, cfg.ParseAndValidate(logger.NewMemLogger()))

	assert.False(t, cfg.API.Enabled())
	assert.Zero(t, cfg.API.MaxRequestBytes)
}
