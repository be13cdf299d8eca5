package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

func newTestHub() *Hub {
	return NewHub(logger.NewDiscardLogger())
}

func TestSnapshotsAreLatestWins(t *testing.T) {
	h := newTestHub()
	s := h.Subscribe()
	defer h.Unsubscribe(s)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.PublishSnapshot(models.Snapshot{Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	select {
	case got := <-s.Snapshots():
		assert.Equal(t, base.Add(4*time.Second), got.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case got := <-s.Snapshots():
		t.Fatalf("unexpected extra snapshot %v", got.Timestamp)
	default:
	}
}

func TestScansAreNeverDropped(t *testing.T) {
	h := newTestHub()
	s := h.Subscribe()
	defer h.Unsubscribe(s)

	const n = 200
	published := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			rec := models.NewScanRecord(models.ScanTypeFile, "f", time.Now())
			rec.Target = string(rune('a' + i%26))
			h.PublishScan(ScanFinished{Type: models.ScanTypeFile, Record: *rec})
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-s.Scans():
			assert.Equal(t, string(rune('a'+i%26)), got.Record.Target)
		case <-time.After(time.Second):
			t.Fatalf("scan %d was not delivered", i)
		}
	}
}

func TestEventsAndAdvisoriesAreIndependent(t *testing.T) {
	h := newTestHub()
	s := h.Subscribe()
	defer h.Unsubscribe(s)

	h.PublishEvents([]models.EventItem{{Source: "system"}})
	h.PublishAdvisory(models.Advisory{Level: models.AdvisoryWarning, Kind: models.KindToolMissing})

	// nobody reads events, advisories still flow
	select {
	case adv := <-s.Advisories():
		assert.Equal(t, models.KindToolMissing, adv.Kind)
	case <-time.After(time.Second):
		t.Fatal("advisory not delivered")
	}

	events := <-s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "system", events[0].Source)
}

func TestUnsubscribeClosesChannels(t *testing.T) {
	h := newTestHub()
	s := h.Subscribe()
	h.Unsubscribe(s)
	h.PublishSnapshot(models.Snapshot{})
	h.PublishScan(ScanFinished{})

	_, ok := <-s.Snapshots()
	assert.False(t, ok)
	_, ok = <-s.Scans()
	assert.False(t, ok)
	_, ok = <-s.Events()
	assert.False(t, ok)
	_, ok = <-s.Advisories()
	assert.False(t, ok)
}

func TestSubscribeAfterClose(t *testing.T) {
	h := newTestHub()
	h.Close()
	s := h.Subscribe()
	_, ok := <-s.Scans()
	assert.False(t, ok)
}
