package eventlog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const (
	MaxMessageRunes = 512
	ellipsis        = "…"

	maxConcurrentSources = 4
)

var ErrSourceUnsupported = errors.New("event log sources are not supported on this platform")

// SourceReader reads the newest entries of one named log source, newest first.
type SourceReader interface {
	Read(ctx context.Context, source string, max int) ([]models.EventItem, error)
}

// SourceError reports a source that was skipped.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %q: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

type Reader struct {
	source SourceReader
	logger *logger.Logger
}

func NewReader(source SourceReader, logger *logger.Logger) *Reader {
	return &Reader{
		source: source,
		logger: logger,
	}
}

// Recent reads every distinct source concurrently and merges the entries newest first, capped
// at maxCount. A source that cannot be read is replaced by one Warning item stamped with the
// read time and reported in the returned error as a *SourceError. The items are valid even when
// the error is not nil.
func (r *Reader) Recent(ctx context.Context, sources []string, maxCount int) ([]models.EventItem, error) {
	if maxCount <= 0 {
		return []models.EventItem{}, nil
	}

	readAt := system.Now().UTC()
	var (
		mtx    sync.Mutex
		merged []models.EventItem
		errs   *multierror.Error
	)

	seen := mapset.NewThreadUnsafeSet()
	g := &errgroup.Group{}
	g.SetLimit(maxConcurrentSources)
	for _, source := range sources {
		source := strings.TrimSpace(source)
		if source == "" || !seen.Add(source) {
			continue
		}

		g.Go(func() error {
			items, err := r.source.Read(ctx, source, maxCount)

			mtx.Lock()
			defer mtx.Unlock()
			if err != nil {
				r.logger.Infof("skipping event source %q: %v", source, err)
				errs = multierror.Append(errs, &SourceError{Source: source, Err: err})
				merged = append(merged, restrictionWarning(source, err, readAt))
				return nil
			}
			for _, item := range items {
				item.Source = source
				item.Message = TruncateMessage(item.Message)
				merged = append(merged, item)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > maxCount {
		merged = merged[:maxCount]
	}
	if merged == nil {
		merged = []models.EventItem{}
	}
	return merged, errs.ErrorOrNil()
}

func restrictionWarning(source string, err error, at time.Time) models.EventItem {
	var msg string
	switch {
	case errors.Is(err, models.ErrRestrictedSource):
		msg = fmt.Sprintf("Event source %q could not be read: insufficient privileges.", source)
	case errors.Is(err, ErrSourceUnsupported):
		msg = fmt.Sprintf("Event source %q could not be read: not supported on this platform.", source)
	default:
		msg = fmt.Sprintf("Event source %q could not be read: %v", source, err)
	}
	return models.EventItem{
		Timestamp: at,
		Level:     models.EventLevelWarning,
		Source:    source,
		Message:   TruncateMessage(msg),
	}
}

// TruncateMessage trims surrounding whitespace and cuts the message to MaxMessageRunes runes,
// appending an ellipsis when something was cut.
func TruncateMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= MaxMessageRunes {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxMessageRunes]) + ellipsis
}
