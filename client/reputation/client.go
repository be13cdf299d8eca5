package reputation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const (
	DefaultBaseURL  = "https://www.virustotal.com/api/v3"
	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = time.Hour

	apiKeyHeader     = "x-apikey"
	maxResponseBytes = 4 * 1024 * 1024
)

type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Enabled reports whether lookups can be made at all.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// Verdict is the engine tally of a known report. Found is false when the service has never
// seen the subject.
type Verdict struct {
	Found      bool
	ID         string
	Malicious  int
	Suspicious int
	Harmless   int
	Undetected int
}

// Client talks to a VirusTotal v3 compatible reputation service. Known verdicts are cached
// for CacheTTL.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	verdicts   *cache.Cache
	logger     *logger.Logger
}

func NewClient(cfg Config, logger *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		verdicts: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:   logger,
	}
}

// FileReport looks up a file by its hex SHA-256 digest.
func (c *Client) FileReport(ctx context.Context, sha256 string) (*Verdict, error) {
	return c.report(ctx, "file:"+sha256, "/files/"+url.PathEscape(sha256))
}

// URLReport looks up the last analysis of rawURL.
func (c *Client) URLReport(ctx context.Context, rawURL string) (*Verdict, error) {
	id := URLID(rawURL)
	return c.report(ctx, "url:"+id, "/urls/"+id)
}

// SubmitURL queues rawURL for analysis and returns the analysis id without waiting for it.
func (c *Client) SubmitURL(ctx context.Context, rawURL string) (string, error) {
	form := url.Values{"url": {rawURL}}
	req, err := c.newRequest(ctx, http.MethodPost, "/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp objectResponse
	status, err := c.do(req, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", errors.Wrapf(models.ErrRemoteService, "submit url: unexpected status %d", status)
	}
	if resp.Data.ID == "" {
		return "", errors.Wrap(models.ErrRemoteService, "submit url: response without analysis id")
	}
	return resp.Data.ID, nil
}

// URLID is the identifier the service uses for a URL: unpadded base64url of the URL itself.
func URLID(rawURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawURL))
}

type analysisStats struct {
	Harmless   int `json:"harmless"`
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Undetected int `json:"undetected"`
}

type objectResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			LastAnalysisStats analysisStats `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *Client) report(ctx context.Context, cacheKey, path string) (*Verdict, error) {
	if cached, ok := c.verdicts.Get(cacheKey); ok {
		v := cached.(Verdict)
		return &v, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp objectResponse
	status, err := c.do(req, &resp)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return &Verdict{Found: false}, nil
	default:
		return nil, errors.Wrapf(models.ErrRemoteService, "lookup %s: unexpected status %d", path, status)
	}

	stats := resp.Data.Attributes.LastAnalysisStats
	v := Verdict{
		Found:      true,
		ID:         resp.Data.ID,
		Malicious:  stats.Malicious,
		Suspicious: stats.Suspicious,
		Harmless:   stats.Harmless,
		Undetected: stats.Undetected,
	}
	c.verdicts.SetDefault(cacheKey, v)
	return &v, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a 200 response into v. Other statuses are returned for the caller
// to interpret.
func (c *Client) do(req *http.Request, v interface{}) (int, error) {
	c.logger.Debugf("%s %s", req.Method, req.URL.Path)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(models.ErrRemoteService, "%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes))
		return res.StatusCode, nil
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(v); err != nil {
		return res.StatusCode, errors.Wrapf(models.ErrRemoteService, "invalid response from %s: %v", req.URL.Path, err)
	}
	return res.StatusCode, nil
}

func (v Verdict) String() string {
	if !v.Found {
		return "unknown"
	}
	return fmt.Sprintf("%d malicious, %d suspicious, %d harmless, %d undetected", v.Malicious, v.Suspicious, v.Harmless, v.Undetected)
}
