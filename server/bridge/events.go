package bridge

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/eventlog"
	"github.com/openrport/rguard/share/models"
)

// LoadRecentEvents reads the configured event sources on a worker, saves entries that were
// not saved by an earlier load and publishes the whole batch.
func (b *Bridge) LoadRecentEvents() error {
	b.scanMu.Lock()
	if b.closed.Load() {
		b.scanMu.Unlock()
		return ErrClosed
	}
	b.workers.Add(1)
	b.scanMu.Unlock()
	go func() {
		defer b.workers.Done()
		b.loadRecentEvents()
	}()
	return nil
}

func (b *Bridge) loadRecentEvents() {
	items, err := b.events.Recent(b.ctx, b.sources, b.eventMax)

	failed := map[string]bool{}
	for _, srcErr := range sourceErrors(err) {
		failed[srcErr.Source] = true
		b.advise(models.AdvisoryWarning, srcErr.Err, fmt.Sprintf("event source %q skipped: %v", srcErr.Source, srcErr.Err))
	}
	if err != nil && len(failed) == 0 {
		b.logger.Errorf("failed to read events: %v", err)
	}

	b.writer.AppendEvents(b.unsaved(items, failed))
	b.hub.PublishEvents(items)
}

func sourceErrors(err error) []*eventlog.SourceError {
	if err == nil {
		return nil
	}
	var errs []error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}

	var result []*eventlog.SourceError
	for _, e := range errs {
		var srcErr *eventlog.SourceError
		if errors.As(e, &srcErr) {
			result = append(result, srcErr)
		}
	}
	return result
}

// loadMark is the newest timestamp saved for a source together with the entries saved at
// exactly that timestamp.
type loadMark struct {
	at   time.Time
	seen map[string]bool
}

func eventKey(item models.EventItem) string {
	return string(item.Level) + "\x00" + item.Message
}

func (m loadMark) saved(item models.EventItem) bool {
	if item.Timestamp.Before(m.at) {
		return true
	}
	return item.Timestamp.Equal(m.at) && m.seen[eventKey(item)]
}

func (m loadMark) add(item models.EventItem) loadMark {
	switch {
	case item.Timestamp.After(m.at):
		return loadMark{at: item.Timestamp, seen: map[string]bool{eventKey(item): true}}
	case item.Timestamp.Equal(m.at):
		seen := make(map[string]bool, len(m.seen)+1)
		for k := range m.seen {
			seen[k] = true
		}
		seen[eventKey(item)] = true
		return loadMark{at: m.at, seen: seen}
	}
	return m
}

// unsaved drops synthetic warnings of failed sources and entries an earlier load already
// saved for the same source. Distinct entries sharing the newest saved timestamp are kept.
func (b *Bridge) unsaved(items []models.EventItem, failed map[string]bool) []models.EventItem {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()

	next := map[string]loadMark{}
	var result []models.EventItem
	for _, item := range items {
		if failed[item.Source] || b.lastLoaded[item.Source].saved(item) {
			continue
		}
		mark, ok := next[item.Source]
		if !ok {
			mark = b.lastLoaded[item.Source]
		}
		next[item.Source] = mark.add(item)
		result = append(result, item)
	}
	for source, mark := range next {
		b.lastLoaded[source] = mark
	}
	return result
}
