package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
	"github.com/openrport/rguard/share/pubsub"
)

const (
	DefaultSampleInterval = time.Second
	DefaultEventMax       = 200
)

var ErrClosed = errors.New("bridge is closed")

type Collector interface {
	Snapshot(ctx context.Context) models.Snapshot
}

type EventReader interface {
	Recent(ctx context.Context, sources []string, maxCount int) ([]models.EventItem, error)
}

// HistoryWriter queues writes to the repository. It never blocks the caller.
type HistoryWriter interface {
	AppendEvents(batch []models.EventItem)
	AddScanRecord(record *models.ScanRecord)
	Close() error
}

type HistoryReader interface {
	RecentEvents(ctx context.Context, max int) ([]models.EventItem, error)
	RecentScans(ctx context.Context, max int) ([]models.ScanRecord, error)
}

type Deps struct {
	Collector Collector
	Events    EventReader
	Writer    HistoryWriter
	History   HistoryReader
	Hub       *pubsub.Hub
	Runners   map[models.ScanType]ScanRunner
}

type Options struct {
	EventSources   []string
	EventMax       int
	SampleInterval time.Duration
	NewTicker      func(d time.Duration) Ticker
	Now            func() time.Time
}

// Bridge coordinates the sampling loop and on-demand scans and publishes their output
// to subscribers.
type Bridge struct {
	collector Collector
	events    EventReader
	writer    HistoryWriter
	history   HistoryReader
	hub       *pubsub.Hub
	runners   map[models.ScanType]ScanRunner
	logger    *logger.Logger

	sources   []string
	eventMax  int
	interval  time.Duration
	newTicker func(d time.Duration) Ticker
	now       func() time.Time

	live liveState

	// scanMu also guards workers.Add against Close
	scanMu   sync.Mutex
	inflight map[models.ScanType]bool

	loadMu     sync.Mutex
	lastLoaded map[string]loadMark

	workers sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
}

func New(deps Deps, opts Options, logger *logger.Logger) *Bridge {
	if opts.EventMax <= 0 {
		opts.EventMax = DefaultEventMax
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	runners := make(map[models.ScanType]ScanRunner, len(deps.Runners))
	for t, r := range deps.Runners {
		runners[t] = r
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		collector:  deps.Collector,
		events:     deps.Events,
		writer:     deps.Writer,
		history:    deps.History,
		hub:        deps.Hub,
		runners:    runners,
		logger:     logger,
		sources:    opts.EventSources,
		eventMax:   opts.EventMax,
		interval:   opts.SampleInterval,
		newTicker:  opts.NewTicker,
		now:        opts.Now,
		inflight:   make(map[models.ScanType]bool),
		lastLoaded: make(map[string]loadMark),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *Bridge) Subscribe() *pubsub.Subscription {
	return b.hub.Subscribe()
}

func (b *Bridge) Unsubscribe(s *pubsub.Subscription) {
	b.hub.Unsubscribe(s)
}

func (b *Bridge) RecentEvents(ctx context.Context, max int) ([]models.EventItem, error) {
	events, err := b.history.RecentEvents(ctx, max)
	if err != nil {
		return nil, errors.Wrap(models.ErrPersistence, err.Error())
	}
	return events, nil
}

func (b *Bridge) RecentScans(ctx context.Context, max int) ([]models.ScanRecord, error) {
	scans, err := b.history.RecentScans(ctx, max)
	if err != nil {
		return nil, errors.Wrap(models.ErrPersistence, err.Error())
	}
	return scans, nil
}

func (b *Bridge) advise(level models.AdvisoryLevel, err error, message string) {
	adv := models.NewAdvisory(level, err, message)
	adv.Timestamp = b.now().UTC()
	b.hub.PublishAdvisory(adv)
}

// Close stops sampling, cancels and waits for running workers, flushes the history writer
// and closes all subscriptions.
func (b *Bridge) Close() error {
	// workers and the sampling loop are only added under these locks, so no Add can
	// follow the Waits below
	b.scanMu.Lock()
	b.live.mu.Lock()
	first := b.closed.CompareAndSwap(false, true)
	b.live.mu.Unlock()
	b.scanMu.Unlock()
	if !first {
		return nil
	}
	b.StopLive()
	b.cancel()
	b.workers.Wait()
	b.live.wait()

	err := b.writer.Close()
	b.hub.Close()
	return err
}
