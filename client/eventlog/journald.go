package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const (
	journalctl       = "journalctl"
	readToolTimeout  = 15 * time.Second
	stderrExcerptLen = 200
)

var journalctlFallbacks = []string{"/usr/bin/journalctl", "/bin/journalctl"}

// journal output hints meaning the caller lacks the rights to read the source
var journalRestrictionHints = []string{
	"insufficient permissions",
	"not seeing messages",
	"permission denied",
}

// JournalReader reads systemd journal entries through journalctl.
type JournalReader struct {
	runner system.CmdRunner
	logger *logger.Logger
	path   string
}

func NewJournalReader(runner system.CmdRunner, logger *logger.Logger) *JournalReader {
	return &JournalReader{
		runner: runner,
		logger: logger,
		path:   system.ResolveExecutable(nil, journalctl, journalctlFallbacks),
	}
}

func (r *JournalReader) Read(ctx context.Context, source string, max int) ([]models.EventItem, error) {
	if r.path == "" {
		return nil, errors.Wrap(models.ErrToolMissing, journalctl)
	}

	res, err := r.runner.Run(ctx, readToolTimeout, r.path, journalArgs(source, max)...)
	if res == nil {
		res = &system.CmdResult{}
	}
	if hasRestrictionHint(res.Stderr) {
		return nil, errors.Wrapf(models.ErrRestrictedSource, "%s", excerpt(res.Stderr))
	}
	if errors.Is(err, system.ErrCommandTimeout) {
		return nil, errors.Wrap(models.ErrTimeout, journalctl)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s failed: %s", journalctl, excerpt(res.Stderr))
	}

	return parseJournalOutput(res.Stdout, max)
}

// journalArgs selects the source: "kernel" is the kernel ring, "system" the whole journal,
// unit names ending in .service match the unit and anything else the syslog identifier.
func journalArgs(source string, max int) []string {
	args := []string{"--no-pager", "-o", "json", "-r", "-n", strconv.Itoa(max)}
	switch {
	case strings.EqualFold(source, "kernel"):
		args = append(args, "-k")
	case strings.EqualFold(source, "system"):
	case strings.HasSuffix(source, ".service"):
		args = append(args, "-u", source)
	default:
		args = append(args, "-t", source)
	}
	return args
}

type journalEntry struct {
	RealtimeTimestamp string          `json:"__REALTIME_TIMESTAMP"`
	Priority          string          `json:"PRIORITY"`
	Message           json.RawMessage `json:"MESSAGE"`
}

func parseJournalOutput(out []byte, max int) ([]models.EventItem, error) {
	items := make([]models.EventItem, 0)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errors.Wrap(err, "invalid journal entry")
		}

		usec, err := strconv.ParseInt(entry.RealtimeTimestamp, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid journal timestamp %q", entry.RealtimeTimestamp)
		}

		items = append(items, models.EventItem{
			Timestamp: time.UnixMicro(usec).UTC(),
			Level:     journalPriorityToLevel(entry.Priority),
			Message:   journalMessage(entry.Message),
		})
		if len(items) == max {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read journal output")
	}
	return items, nil
}

// journalMessage handles MESSAGE being a string, null or, for non-UTF-8 payloads, a byte array.
func journalMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err == nil {
		b = make([]byte, len(ints))
		for i, v := range ints {
			b[i] = byte(v)
		}
		return strings.ToValidUTF8(string(b), "�")
	}
	return ""
}

// journalPriorityToLevel maps syslog priorities 0..7.
func journalPriorityToLevel(priority string) models.EventLevel {
	switch priority {
	case "0", "1", "2":
		return models.EventLevelCritical
	case "3":
		return models.EventLevelError
	case "4":
		return models.EventLevelWarning
	default:
		return models.EventLevelInfo
	}
}

func hasRestrictionHint(stderr []byte) bool {
	lower := strings.ToLower(string(stderr))
	for _, hint := range journalRestrictionHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if r := []rune(s); len(r) > stderrExcerptLen {
		return string(r[:stderrExcerptLen]) + ellipsis
	}
	return s
}
