package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"

	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const (
	DefaultQueueSize = 10000
	saveTimeout      = 30 * time.Second
)

type saver interface {
	AppendEvents(ctx context.Context, batch []models.EventItem) error
	AddScanRecord(ctx context.Context, record *models.ScanRecord) error
}

type WriterOptions struct {
	QueueSize int
	RetryMin  time.Duration
	RetryMax  time.Duration
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.RetryMin <= 0 {
		o.RetryMin = time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = time.Minute
	}
	return o
}

// item is either an event batch or a scan record.
type item struct {
	events []models.EventItem
	scan   *models.ScanRecord
}

func (i item) String() string {
	if i.scan != nil {
		return i.scan.String()
	}
	return fmt.Sprintf("batch of %d events", len(i.events))
}

// Writer serializes all repository writes through one goroutine. A failed item stays at
// the head of the queue and is retried on the next write or after a backoff.
type Writer struct {
	saver      saver
	onAdvisory func(models.Advisory)
	logger     *logger.Logger
	size       int
	retry      *backoff.Backoff

	mu       sync.Mutex
	queue    []item
	inflight bool
	degraded bool

	closed atomic.Bool
	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func NewWriter(logger *logger.Logger, saver saver, opts WriterOptions, onAdvisory func(models.Advisory)) *Writer {
	opts = opts.withDefaults()
	if onAdvisory == nil {
		onAdvisory = func(models.Advisory) {}
	}
	w := &Writer{
		saver:      saver,
		onAdvisory: onAdvisory,
		logger:     logger,
		size:       opts.QueueSize,
		retry: &backoff.Backoff{
			Min:    opts.RetryMin,
			Max:    opts.RetryMax,
			Factor: 2,
		},
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.process()
	return w
}

func (w *Writer) AppendEvents(batch []models.EventItem) {
	if len(batch) == 0 {
		return
	}
	w.enqueue(item{events: batch})
}

func (w *Writer) AddScanRecord(record *models.ScanRecord) {
	if record == nil {
		return
	}
	w.enqueue(item{scan: record})
}

// Len returns the number of items waiting to be written, including one being written.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Writer) enqueue(it item) {
	if w.closed.Load() {
		w.logger.Errorf("writer closed, %s not persisted", it)
		return
	}

	var dropped []models.EventItem
	w.mu.Lock()
	if len(w.queue) >= w.size {
		if idx := w.oldestEventBatch(); idx >= 0 {
			dropped = w.queue[idx].events
			w.queue = append(w.queue[:idx], w.queue[idx+1:]...)
		} else if it.scan == nil {
			dropped = it.events
			it = item{}
		}
	}
	if it.scan != nil || it.events != nil {
		w.queue = append(w.queue, it)
	}
	w.mu.Unlock()

	if dropped != nil {
		msg := fmt.Sprintf("history queue is full, %d events were not persisted", len(dropped))
		w.logger.Errorf("%s", msg)
		w.onAdvisory(models.NewAdvisory(models.AdvisoryWarning, models.ErrPersistence, msg))
	}

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// oldestEventBatch must be called with mu held. The head is skipped while it is being
// written.
func (w *Writer) oldestEventBatch() int {
	start := 0
	if w.inflight {
		start = 1
	}
	for i := start; i < len(w.queue); i++ {
		if w.queue[i].scan == nil {
			return i
		}
	}
	return -1
}

func (w *Writer) head() (item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return item{}, false
	}
	w.inflight = true
	return w.queue[0], true
}

// finish must be called after every head. The head is removed unless it has to be retried.
func (w *Writer) finish(remove bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight = false
	if remove && len(w.queue) > 0 {
		w.queue = w.queue[1:]
	}
}

func (w *Writer) save(it item) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if it.scan != nil {
		return w.saver.AddScanRecord(ctx, it.scan)
	}
	return w.saver.AppendEvents(ctx, it.events)
}

func (w *Writer) process() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			w.flush()
			return
		default:
		}

		it, ok := w.head()
		if !ok {
			select {
			case <-w.signal:
			case <-w.stop:
			}
			continue
		}

		err := w.save(it)
		switch {
		case err == nil:
			w.finish(true)
			w.retry.Reset()
			w.recovered()
			continue
		case errors.Is(err, models.ErrInvalidRecord):
			// retrying can't help, the item is rejected for good
			w.finish(true)
			msg := fmt.Sprintf("%s was rejected: %v", it, err)
			w.logger.Errorf("%s", msg)
			w.onAdvisory(models.NewAdvisory(models.AdvisoryError, models.ErrPersistence, msg))
			continue
		}

		w.finish(false)
		w.degrade(it, err)

		timer := time.NewTimer(w.retry.Duration())
		select {
		case <-w.signal:
		case <-timer.C:
		case <-w.stop:
		}
		timer.Stop()
	}
}

func (w *Writer) degrade(it item, err error) {
	w.logger.Errorf("failed to persist %s: %v", it, err)
	if w.degraded {
		return
	}
	w.degraded = true
	w.onAdvisory(models.NewAdvisory(
		models.AdvisoryWarning,
		errors.Wrap(models.ErrPersistence, err.Error()),
		fmt.Sprintf("history is not being saved, retrying: %v", err),
	))
}

func (w *Writer) recovered() {
	if !w.degraded {
		return
	}
	w.degraded = false
	w.logger.Infof("history persistence recovered")
	w.onAdvisory(models.NewAdvisory(models.AdvisoryInfo, models.ErrPersistence, "history persistence recovered"))
}

// flush makes one last attempt for every queued item.
func (w *Writer) flush() {
	lost := 0
	for {
		it, ok := w.head()
		if !ok {
			break
		}
		if err := w.save(it); err != nil {
			w.logger.Errorf("failed to persist %s on close: %v", it, err)
			lost++
		}
		w.finish(true)
	}
	if lost > 0 {
		w.logger.Errorf("%d history items were lost on close", lost)
	}
}

// Close stops accepting writes, flushes what is queued and waits for the writer goroutine.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stop)
	<-w.done
	return nil
}
