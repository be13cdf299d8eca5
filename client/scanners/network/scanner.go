package network

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

type Mode string

const (
	ModeFast     Mode = "fast"
	ModeThorough Mode = "thorough"

	DefaultTimeout = 5 * time.Minute

	nmap             = "nmap"
	stderrExcerptLen = 300
)

var nmapFallbacks = []string{
	"/usr/bin/nmap",
	"/usr/local/bin/nmap",
	"/opt/homebrew/bin/nmap",
	`C:\Program Files (x86)\Nmap\nmap.exe`,
	`C:\Program Files\Nmap\nmap.exe`,
}

var modeArgs = map[Mode][]string{
	ModeFast:     {"-T4", "-F", "-oX", "-"},
	ModeThorough: {"-T4", "-sV", "--top-ports", "1000", "-oX", "-"},
}

// ParseMode maps a mode name to a Mode. An empty name selects ModeFast.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeFast, nil
	}
	if _, ok := modeArgs[Mode(s)]; !ok {
		return "", errors.Wrapf(models.ErrInvalidTarget, "unknown scan mode %q", s)
	}
	return Mode(s), nil
}

type Config struct {
	NmapPaths []string      `mapstructure:"nmap_paths"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type Scanner struct {
	runner system.CmdRunner
	config Config
	logger *logger.Logger

	mu   sync.Mutex
	path string
}

func NewScanner(runner system.CmdRunner, config Config, logger *logger.Logger) *Scanner {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Scanner{
		runner: runner,
		config: config,
		logger: logger,
	}
}

// nmapPath is resolved on every scan until nmap is found, installing it needs no restart.
func (s *Scanner) nmapPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		s.path = system.ResolveExecutable(s.config.NmapPaths, nmap, nmapFallbacks)
		if s.path != "" {
			s.logger.Debugf("using %s", s.path)
		}
	}
	return s.path
}

// Scan runs nmap against target and always returns a terminal record. Problems are
// reported as diagnostic findings, never as errors.
func (s *Scanner) Scan(ctx context.Context, target string, mode Mode) *models.ScanRecord {
	record := models.NewScanRecord(models.ScanTypeNetwork, target, system.Now())
	record.SetMeta("mode", string(mode))

	if err := validateTarget(target); err != nil {
		record.Fail(models.ScanStatusFailed, err, system.Now())
		return record
	}
	args, ok := modeArgs[mode]
	if !ok {
		record.Fail(models.ScanStatusFailed, errors.Wrapf(models.ErrInvalidTarget, "unknown scan mode %q", mode), system.Now())
		return record
	}

	path := s.nmapPath()
	if path == "" {
		record.Fail(models.ScanStatusFailed, errors.Wrap(models.ErrToolMissing, "nmap is not installed or not in PATH"), system.Now())
		return record
	}

	args = append(append([]string{}, args...), target)
	s.logger.Infof("starting %s scan of %s", mode, target)
	res, err := s.runner.Run(ctx, s.config.Timeout, path, args...)
	if res == nil {
		res = &system.CmdResult{}
	}
	if errors.Is(err, system.ErrCommandTimeout) {
		s.logger.Infof("scan of %s timed out after %s", target, s.config.Timeout)
		record.Fail(models.ScanStatusTimedOut, errors.Wrapf(models.ErrTimeout, "nmap did not finish within %s", s.config.Timeout), system.Now())
		return record
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		record.Fail(models.ScanStatusFailed, errors.Wrap(ctxErr, "scan cancelled"), system.Now())
		return record
	}
	if err != nil && len(bytes.TrimSpace(res.Stdout)) == 0 {
		record.Fail(models.ScanStatusFailed, errors.Wrapf(models.ErrToolFailed, "nmap exited with code %d: %s", res.ExitCode, excerpt(res.Stderr, err)), system.Now())
		return record
	}

	findings, perr := parseReport(res.Stdout)
	if perr != nil {
		record.Fail(models.ScanStatusFailed, perr, system.Now())
		return record
	}
	for _, f := range findings {
		_ = record.AddFinding(f)
	}
	_ = record.Finish(models.ScanStatusCompleted, system.Now())
	s.logger.Infof("scan of %s completed with %d findings", target, len(findings))
	return record
}

func validateTarget(target string) error {
	switch {
	case target == "":
		return errors.Wrap(models.ErrInvalidTarget, "empty target")
	case strings.HasPrefix(target, "-"):
		return errors.Wrapf(models.ErrInvalidTarget, "target %q looks like an option", target)
	case strings.IndexFunc(target, unicode.IsSpace) >= 0:
		return errors.Wrapf(models.ErrInvalidTarget, "target %q contains whitespace", target)
	}
	return nil
}

func excerpt(stderr []byte, err error) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return err.Error()
	}
	if r := []rune(s); len(r) > stderrExcerptLen {
		return fmt.Sprintf("%s…", string(r[:stderrExcerptLen]))
	}
	return s
}
