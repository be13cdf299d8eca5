package pubsub

import (
	"sync"

	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
	"github.com/openrport/rguard/share/random"
)

// ScanFinished is published once per scan command, carrying the final record.
type ScanFinished struct {
	Type   models.ScanType   `json:"type"`
	Record models.ScanRecord `json:"record"`
}

// Hub fans producer output out to subscribers. Publishing never blocks: snapshots are
// delivered latest-wins, everything else is queued per subscriber and never dropped.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	logger *logger.Logger
}

func NewHub(l *logger.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]*Subscription),
		logger: l,
	}
}

func (h *Hub) Subscribe() *Subscription {
	id, err := random.UUID4()
	if err != nil {
		// uuid only fails when the system random source is broken
		panic(err)
	}
	s := newSubscription(id)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.subs[id] = s
	h.logger.Debugf("subscriber %s added, %d active", id, len(h.subs))
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	delete(h.subs, s.ID)
	h.mu.Unlock()
	if ok {
		s.close()
		h.logger.Debugf("subscriber %s removed", s.ID)
	}
}

func (h *Hub) PublishSnapshot(snapshot models.Snapshot) {
	h.each(func(s *Subscription) { s.offerSnapshot(snapshot) })
}

func (h *Hub) PublishEvents(events []models.EventItem) {
	h.each(func(s *Subscription) { s.events.push(events) })
}

func (h *Hub) PublishScan(finished ScanFinished) {
	h.each(func(s *Subscription) { s.scans.push(finished) })
}

func (h *Hub) PublishAdvisory(advisory models.Advisory) {
	h.logger.Infof("advisory [%s] %s: %s", advisory.Level, advisory.Kind, advisory.Message)
	h.each(func(s *Subscription) { s.advisories.push(advisory) })
}

func (h *Hub) each(fn func(s *Subscription)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		fn(s)
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

type Subscription struct {
	ID string

	snapMu     sync.Mutex
	snapClosed bool
	snapshots  chan models.Snapshot

	events     *mailbox[[]models.EventItem]
	scans      *mailbox[ScanFinished]
	advisories *mailbox[models.Advisory]
}

func newSubscription(id string) *Subscription {
	return &Subscription{
		ID:         id,
		snapshots:  make(chan models.Snapshot, 1),
		events:     newMailbox[[]models.EventItem](),
		scans:      newMailbox[ScanFinished](),
		advisories: newMailbox[models.Advisory](),
	}
}

func (s *Subscription) Snapshots() <-chan models.Snapshot { return s.snapshots }
func (s *Subscription) Events() <-chan []models.EventItem { return s.events.out }
func (s *Subscription) Scans() <-chan ScanFinished { return s.scans.out }
func (s *Subscription) Advisories() <-chan models.Advisory { return s.advisories.out }

// offerSnapshot replaces an undelivered snapshot with the newer one.
func (s *Subscription) offerSnapshot(snapshot models.Snapshot) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if s.snapClosed {
		return
	}
	select {
	case <-s.snapshots:
	default:
	}
	s.snapshots <- snapshot
}

func (s *Subscription) close() {
	s.snapMu.Lock()
	if !s.snapClosed {
		s.snapClosed = true
		close(s.snapshots)
	}
	s.snapMu.Unlock()

	s.events.close()
	s.scans.close()
	s.advisories.close()
}
