package bridge

import (
	"sync"
	"time"
)

// Ticker is the time source of the sampling loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{Ticker: time.NewTicker(d)}
}

// liveState is Idle while running is false. Each Running period owns one sampling
// goroutine and its stop channel.
type liveState struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	loops   sync.WaitGroup

	// sampleMu keeps a tick of an already stopped loop from interleaving with the next
	// Running period.
	sampleMu sync.Mutex
	last     time.Time
}

func (l *liveState) wait() {
	l.loops.Wait()
}

func (b *Bridge) IsLive() bool {
	b.live.mu.Lock()
	defer b.live.mu.Unlock()
	return b.live.running
}

// StartLive begins sampling. It is a no-op while sampling is already running.
func (b *Bridge) StartLive() {
	b.live.mu.Lock()
	defer b.live.mu.Unlock()
	if b.closed.Load() || b.live.running {
		return
	}
	b.live.running = true
	b.live.stop = make(chan struct{})
	b.live.loops.Add(1)
	go b.sample(b.newTicker(b.interval), b.live.stop)
	b.logger.Debugf("live sampling started")
}

// StopLive cancels future ticks and returns without waiting for a tick in progress.
func (b *Bridge) StopLive() {
	b.live.mu.Lock()
	defer b.live.mu.Unlock()
	if !b.live.running {
		return
	}
	b.live.running = false
	close(b.live.stop)
	b.logger.Debugf("live sampling stopped")
}

func (b *Bridge) sample(ticker Ticker, stop <-chan struct{}) {
	defer b.live.loops.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C():
			select {
			case <-stop:
				return
			default:
			}
			b.tick(t)
		}
	}
}

func (b *Bridge) tick(t time.Time) {
	b.live.sampleMu.Lock()
	defer b.live.sampleMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("sampling tick failed: %v", r)
		}
	}()

	snap := b.collector.Snapshot(b.ctx)
	snap.Timestamp = t.UTC()
	if !snap.Timestamp.After(b.live.last) {
		snap.Timestamp = b.live.last.Add(time.Millisecond)
	}
	b.live.last = snap.Timestamp
	b.hub.PublishSnapshot(snap)
}
