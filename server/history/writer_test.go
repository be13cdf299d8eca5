package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/openrport/rguard/share/models"
)

type mockSaver struct {
	mu       sync.Mutex
	events   [][]models.EventItem
	scans    []*models.ScanRecord
	failures int
	block    chan struct{}
	started  chan struct{}
}

func (m *mockSaver) save(fn func()) error {
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("database is locked")
	}
	fn()
	return nil
}

func (m *mockSaver) AppendEvents(ctx context.Context, batch []models.EventItem) error {
	return m.save(func() { m.events = append(m.events, batch) })
}

func (m *mockSaver) AddScanRecord(ctx context.Context, record *models.ScanRecord) error {
	if !record.Status.IsTerminal() {
		return models.ErrInvalidRecord
	}
	return m.save(func() { m.scans = append(m.scans, record) })
}

func (m *mockSaver) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), len(m.scans)
}

type advisories struct {
	mu   sync.Mutex
	list []models.Advisory
}

func (a *advisories) add(adv models.Advisory) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.list = append(a.list, adv)
}

func (a *advisories) get() []models.Advisory {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Advisory(nil), a.list...)
}

type WriterTestSuite struct {
	suite.Suite
	saver      *mockSaver
	advisories *advisories
}

func (suite *WriterTestSuite) SetupTest() {
	suite.saver = &mockSaver{}
	suite.advisories = &advisories{}
}

func (suite *WriterTestSuite) newWriter(size int) *Writer {
	return NewWriter(testLog, suite.saver, WriterOptions{
		QueueSize: size,
		RetryMin:  time.Millisecond,
		RetryMax:  5 * time.Millisecond,
	}, suite.advisories.add)
}

func testEvents(n int) []models.EventItem {
	var batch []models.EventItem
	for i := 0; i < n; i++ {
		batch = append(batch, models.EventItem{Timestamp: historyStart, Level: models.EventLevelInfo, Source: "system"})
	}
	return batch
}

func testScan() *models.ScanRecord {
	rec := models.NewScanRecord(models.ScanTypeFile, "/tmp/a", historyStart)
	_ = rec.Finish(models.ScanStatusCompleted, historyStart.Add(time.Second))
	return rec
}

func (suite *WriterTestSuite) TestWritesInOrder() {
	w := suite.newWriter(0)
	w.AppendEvents(testEvents(2))
	w.AddScanRecord(testScan())
	w.AppendEvents(testEvents(1))
	suite.NoError(w.Close())

	events, scans := suite.saver.counts()
	suite.Equal(2, events)
	suite.Equal(1, scans)
	suite.Len(suite.saver.events[0], 2)
	suite.Len(suite.saver.events[1], 1)
	suite.Empty(suite.advisories.get())
}

func (suite *WriterTestSuite) TestRetriesFailedHead() {
	suite.saver.failures = 3
	w := suite.newWriter(0)
	defer w.Close()

	w.AddScanRecord(testScan())

	suite.Eventually(func() bool {
		_, scans := suite.saver.counts()
		return scans == 1
	}, time.Second, time.Millisecond)

	suite.Eventually(func() bool {
		return len(suite.advisories.get()) == 2
	}, time.Second, time.Millisecond)
	adv := suite.advisories.get()
	suite.Equal(models.AdvisoryWarning, adv[0].Level)
	suite.Equal(models.KindPersistence, adv[0].Kind)
	suite.Equal(models.AdvisoryInfo, adv[1].Level)
	suite.Equal(0, w.Len())
}

func (suite *WriterTestSuite) TestRejectedRecordIsDropped() {
	w := suite.newWriter(0)

	w.AddScanRecord(models.NewScanRecord(models.ScanTypeURL, "https://example.com", historyStart))
	w.AddScanRecord(testScan())

	suite.Eventually(func() bool {
		_, scans := suite.saver.counts()
		return scans == 1
	}, time.Second, time.Millisecond)
	suite.NoError(w.Close())

	adv := suite.advisories.get()
	suite.Require().Len(adv, 1)
	suite.Equal(models.AdvisoryError, adv[0].Level)
}

func (suite *WriterTestSuite) TestFullQueueDropsOldestEventsButNeverScans() {
	suite.saver.block = make(chan struct{})
	suite.saver.started = make(chan struct{}, 1)
	w := suite.newWriter(3)

	w.AppendEvents(testEvents(1))
	<-suite.saver.started

	w.AppendEvents(testEvents(2))
	w.AddScanRecord(testScan())
	suite.Equal(3, w.Len())

	// the batch of two is the oldest that is not being written
	w.AppendEvents(testEvents(3))
	suite.Equal(3, w.Len())
	w.AddScanRecord(testScan())
	suite.Equal(3, w.Len())
	w.AddScanRecord(testScan())
	suite.Equal(4, w.Len())

	close(suite.saver.block)
	suite.NoError(w.Close())

	events, scans := suite.saver.counts()
	suite.Equal(1, events)
	suite.Equal(3, scans)
	suite.Len(suite.saver.events[0], 1)
	suite.Len(suite.advisories.get(), 2)
}

func (suite *WriterTestSuite) TestWritesAfterCloseAreIgnored() {
	w := suite.newWriter(0)
	suite.NoError(w.Close())
	suite.NoError(w.Close())

	w.AppendEvents(testEvents(1))

	events, _ := suite.saver.counts()
	suite.Equal(0, events)
}

func TestWriterTestSuite(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}
