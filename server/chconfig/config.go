package chconfig

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"runtime"
	"time"

	"github.com/jpillora/requestlog"
	"github.com/robfig/cron/v3"

	"github.com/openrport/rguard/client/eventlog"
	"github.com/openrport/rguard/client/monitoring"
	"github.com/openrport/rguard/client/reputation"
	"github.com/openrport/rguard/client/scanners/network"
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/server/history"
	"github.com/openrport/rguard/share/logger"
)

const (
	EnvReputationAPIKey = "RGUARD_REPUTATION_API_KEY"

	DefaultAPIAddress      = "127.0.0.1:7171"
	DefaultDatabasePath    = "rguard.db"
	DefaultMaxRequestBytes = 1 << 20
)

type LogConfig struct {
	LogOutput logger.LogOutput `mapstructure:"log_file"`
	LogLevel  logger.LogLevel  `mapstructure:"log_level"`
}

type APIConfig struct {
	Address         string   `mapstructure:"address"`
	AuthToken       string   `mapstructure:"auth_token"`
	CertFile        string   `mapstructure:"cert_file"`
	KeyFile         string   `mapstructure:"key_file"`
	AccessLogFile   string   `mapstructure:"access_log_file"`
	MaxRequestBytes int64    `mapstructure:"max_request_bytes"`
	CORS            []string `mapstructure:"cors"`
}

func (c APIConfig) Enabled() bool {
	return c.Address != ""
}

type EventLogConfig struct {
	Sources  []string `mapstructure:"sources"`
	MaxCount int      `mapstructure:"max_count"`
}

type ScannersConfig struct {
	Network network.Config `mapstructure:"network"`
}

type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	QueueSize       int           `mapstructure:"queue_size"`
}

type Config struct {
	Logging    LogConfig         `mapstructure:"logging"`
	API        APIConfig         `mapstructure:"api"`
	Monitoring monitoring.Config `mapstructure:"monitoring"`
	EventLog   EventLogConfig    `mapstructure:"event_log"`
	Scanners   ScannersConfig    `mapstructure:"scanners"`
	Reputation reputation.Config `mapstructure:"reputation"`
	Database   DatabaseConfig    `mapstructure:"database"`
}

func (c *Config) InitRequestLogOptions() *requestlog.Options {
	o := requestlog.DefaultOptions
	if c.Logging.LogOutput.File != nil {
		o.Writer = c.Logging.LogOutput.File
	}
	o.Filter = func(r *http.Request, code int, duration time.Duration, size int64) bool {
		return c.Logging.LogLevel == logger.LogLevelInfo || c.Logging.LogLevel == logger.LogLevelDebug
	}
	return &o
}

// ParseAndValidate fills in defaults and rejects settings the agent can't run with.
// Settings that are dropped instead of rejected are reported to mLog.
func (c *Config) ParseAndValidate(mLog *logger.MemLogger) error {
	if err := c.parseAndValidateAPI(mLog); err != nil {
		return err
	}
	if err := c.parseAndValidateMonitoring(); err != nil {
		return err
	}
	c.parseAndValidateEventLog(mLog)
	if err := c.parseAndValidateScanners(); err != nil {
		return err
	}
	if err := c.parseAndValidateReputation(mLog); err != nil {
		return err
	}
	return c.parseAndValidateDatabase()
}

func (c *Config) parseAndValidateAPI(mLog *logger.MemLogger) error {
	if !c.API.Enabled() {
		mLog.Infof("api address is empty, the HTTP listener is disabled")
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Address); err != nil {
		return fmt.Errorf("invalid api address %q: %v", c.API.Address, err)
	}
	if err := c.parseAndValidateAPIHTTPSOptions(); err != nil {
		return err
	}
	if c.API.MaxRequestBytes < 0 {
		return errors.New("max_request_bytes can not be negative")
	}
	if c.API.MaxRequestBytes == 0 {
		c.API.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.API.AuthToken == "" {
		mLog.Infof("api auth_token is empty, the API accepts unauthenticated requests")
	}
	c.API.CORS = parseAndValidateCORS(mLog, c.API.CORS)
	return nil
}

func (c *Config) parseAndValidateAPIHTTPSOptions() error {
	if c.API.CertFile == "" && c.API.KeyFile == "" {
		return nil
	}
	if c.API.CertFile != "" && c.API.KeyFile == "" {
		return errors.New("when 'cert_file' is set, 'key_file' must be set as well")
	}
	if c.API.CertFile == "" && c.API.KeyFile != "" {
		return errors.New("when 'key_file' is set, 'cert_file' must be set as well")
	}
	_, err := tls.LoadX509KeyPair(c.API.CertFile, c.API.KeyFile)
	if err != nil {
		return fmt.Errorf("invalid 'cert_file', 'key_file': %v", err)
	}
	return nil
}

func parseAndValidateCORS(mLog *logger.MemLogger, cors []string) []string {
	result := []string{}
	for _, c := range cors {
		err := validateCORSOrigin(c)
		if err != nil {
			mLog.Errorf("invalid cors origin %q: %v", c, err)
			continue
		}
		result = append(result, c)
	}
	return result
}

func validateCORSOrigin(c string) error {
	if c == "*" {
		return nil
	}
	u, err := url.Parse(c)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("must have a host")
	}
	if u.Path != "" {
		return errors.New("must not have a path")
	}
	return nil
}

func (c *Config) parseAndValidateMonitoring() error {
	for _, expr := range c.Monitoring.NetInterfaceExcludeRegex {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("invalid 'net_interface_exclude_regex' %q: %v", expr, err)
		}
	}
	return nil
}

func (c *Config) parseAndValidateEventLog(mLog *logger.MemLogger) {
	if len(c.EventLog.Sources) == 0 {
		c.EventLog.Sources = eventlog.DefaultSources(runtime.GOOS)
		if len(c.EventLog.Sources) == 0 {
			mLog.Infof("event log sources are not supported on %s", runtime.GOOS)
		}
	}
	if c.EventLog.MaxCount <= 0 {
		c.EventLog.MaxCount = bridge.DefaultEventMax
	}
}

func (c *Config) parseAndValidateScanners() error {
	if c.Scanners.Network.Timeout < 0 {
		return errors.New("scanners.network timeout can not be negative")
	}
	if c.Scanners.Network.Timeout == 0 {
		c.Scanners.Network.Timeout = network.DefaultTimeout
	}
	return nil
}

func (c *Config) parseAndValidateReputation(mLog *logger.MemLogger) error {
	if key := os.Getenv(EnvReputationAPIKey); key != "" {
		c.Reputation.APIKey = key
	}
	if c.Reputation.BaseURL == "" {
		c.Reputation.BaseURL = reputation.DefaultBaseURL
	}
	u, err := url.Parse(c.Reputation.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("reputation base_url must be an absolute http(s) url, got %q", c.Reputation.BaseURL)
	}
	if c.Reputation.Timeout < 0 {
		return errors.New("reputation timeout can not be negative")
	}
	if c.Reputation.Timeout == 0 {
		c.Reputation.Timeout = reputation.DefaultTimeout
	}
	if c.Reputation.CacheTTL <= 0 {
		c.Reputation.CacheTTL = reputation.DefaultCacheTTL
	}
	if !c.Reputation.Enabled() {
		mLog.Infof("reputation api_key is empty, file scans are local only and url scans are unavailable")
	}
	return nil
}

func (c *Config) parseAndValidateDatabase() error {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Database.Retention < 0 {
		return errors.New("database retention can not be negative")
	}
	if c.Database.Retention == 0 {
		c.Database.Retention = history.DefaultRetention
	}
	if c.Database.CleanupSchedule == "" {
		c.Database.CleanupSchedule = history.DefaultCleanupSchedule
	}
	if _, err := cron.ParseStandard(c.Database.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid database cleanup_schedule %q: %v", c.Database.CleanupSchedule, err)
	}
	if c.Database.QueueSize < 0 {
		return errors.New("database queue_size can not be negative")
	}
	if c.Database.QueueSize == 0 {
		c.Database.QueueSize = history.DefaultQueueSize
	}
	return nil
}
