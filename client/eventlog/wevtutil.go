package eventlog

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const wevtutil = "wevtutil"

var wevtutilFallbacks = []string{`C:\Windows\System32\wevtutil.exe`}

// WevtutilReader reads Windows event log channels through wevtutil.
type WevtutilReader struct {
	runner  system.CmdRunner
	logger  *logger.Logger
	path    string
	decoder *system.ConsoleDecoder
}

func NewWevtutilReader(runner system.CmdRunner, logger *logger.Logger) *WevtutilReader {
	return &WevtutilReader{
		runner:  runner,
		logger:  logger,
		path:    system.ResolveExecutable(nil, wevtutil, wevtutilFallbacks),
		decoder: system.NewConsoleDecoder(runner, logger),
	}
}

func (r *WevtutilReader) Read(ctx context.Context, source string, max int) ([]models.EventItem, error) {
	if r.path == "" {
		return nil, errors.Wrap(models.ErrToolMissing, wevtutil)
	}

	res, err := r.runner.Run(ctx, readToolTimeout, r.path, wevtutilArgs(source, max)...)
	if res == nil {
		res = &system.CmdResult{}
	}
	stderr, _ := r.decoder.Decode(ctx, res.Stderr)
	if strings.Contains(strings.ToLower(stderr), "access is denied") {
		return nil, errors.Wrap(models.ErrRestrictedSource, strings.TrimSpace(stderr))
	}
	if errors.Is(err, system.ErrCommandTimeout) {
		return nil, errors.Wrap(models.ErrTimeout, wevtutil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s failed: %s", wevtutil, excerpt([]byte(stderr)))
	}

	stdout, err := r.decoder.Decode(ctx, res.Stdout)
	if err != nil {
		return nil, err
	}
	return parseWevtutilOutput([]byte(stdout), max)
}

func wevtutilArgs(source string, max int) []string {
	return []string{"qe", source, fmt.Sprintf("/c:%d", max), "/rd:true", "/f:RenderedXml"}
}

type winEvent struct {
	System struct {
		Provider struct {
			Name string `xml:"Name,attr"`
		} `xml:"Provider"`
		EventID     string `xml:"EventID"`
		Level       string `xml:"Level"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
		} `xml:"TimeCreated"`
	} `xml:"System"`
	EventData struct {
		Data []string `xml:"Data"`
	} `xml:"EventData"`
	RenderingInfo struct {
		Message string `xml:"Message"`
	} `xml:"RenderingInfo"`
}

// parseWevtutilOutput reads the sequence of <Event> documents wevtutil prints without a root
// element.
func parseWevtutilOutput(out []byte, max int) ([]models.EventItem, error) {
	items := make([]models.EventItem, 0)
	dec := xml.NewDecoder(bytes.NewReader(out))
	for len(items) < max {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "invalid event xml")
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Event" {
			continue
		}

		var ev winEvent
		if err := dec.DecodeElement(&ev, &start); err != nil {
			return nil, errors.Wrap(err, "invalid event xml")
		}

		ts, err := time.Parse(time.RFC3339Nano, ev.System.TimeCreated.SystemTime)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid event time %q", ev.System.TimeCreated.SystemTime)
		}

		items = append(items, models.EventItem{
			Timestamp: ts.UTC(),
			Level:     winLevelToLevel(ev.System.Level),
			Message:   winEventMessage(&ev),
		})
	}
	return items, nil
}

func winEventMessage(ev *winEvent) string {
	if msg := strings.TrimSpace(ev.RenderingInfo.Message); msg != "" {
		return msg
	}
	msg := fmt.Sprintf("Event %s from %s", ev.System.EventID, ev.System.Provider.Name)
	if len(ev.EventData.Data) > 0 {
		msg += ": " + strings.Join(ev.EventData.Data, "; ")
	}
	return msg
}

// winLevelToLevel maps the Windows event level. 0 (LogAlways), 4 (Information), 5 (Verbose)
// and anything unknown are Info.
func winLevelToLevel(level string) models.EventLevel {
	n, err := strconv.Atoi(strings.TrimSpace(level))
	if err != nil {
		return models.EventLevelInfo
	}
	switch n {
	case 1:
		return models.EventLevelCritical
	case 2:
		return models.EventLevelError
	case 3:
		return models.EventLevelWarning
	default:
		return models.EventLevelInfo
	}
}
