package bridge

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/share/models"
	"github.com/openrport/rguard/share/pubsub"
)

type ScanArgs struct {
	Target string `json:"target"`
	// Mode is only used by network scans.
	Mode string `json:"mode,omitempty"`
}

// ScanRunner executes one scan and returns its record. Runners enforce their own time
// budget and report failures inside the record.
type ScanRunner interface {
	Run(ctx context.Context, args ScanArgs) *models.ScanRecord
}

type ScanRunnerFunc func(ctx context.Context, args ScanArgs) *models.ScanRecord

func (f ScanRunnerFunc) Run(ctx context.Context, args ScanArgs) *models.ScanRecord {
	return f(ctx, args)
}

// Scan starts a scan of scanType on its own worker. It returns models.ErrBusy when a scan
// of the same type is still running.
func (b *Bridge) Scan(scanType models.ScanType, args ScanArgs) error {
	runner, ok := b.runners[scanType]
	if !ok {
		return errors.Wrapf(models.ErrInvalidTarget, "no scanner for type %q", scanType)
	}

	b.scanMu.Lock()
	if b.closed.Load() {
		b.scanMu.Unlock()
		return ErrClosed
	}
	if b.inflight[scanType] {
		b.scanMu.Unlock()
		b.logger.Debugf("%s scan of %q rejected: busy", scanType, args.Target)
		return errors.Wrapf(models.ErrBusy, "%s scan", scanType)
	}
	b.inflight[scanType] = true
	b.workers.Add(1)
	b.scanMu.Unlock()

	go b.runScan(scanType, runner, args)
	return nil
}

func (b *Bridge) IsScanning(scanType models.ScanType) bool {
	b.scanMu.Lock()
	defer b.scanMu.Unlock()
	return b.inflight[scanType]
}

func (b *Bridge) runScan(scanType models.ScanType, runner ScanRunner, args ScanArgs) {
	defer b.workers.Done()

	rec := b.execute(scanType, runner, args)
	b.logger.Infof("%s finished with %d findings", rec, len(rec.Findings))

	if rec.Status.IsTerminal() {
		b.writer.AddScanRecord(rec)
	} else {
		b.advise(models.AdvisoryInfo, nil, fmt.Sprintf("%s is still being analysed remotely and is not saved to history", rec))
	}
	for _, f := range rec.Findings {
		if f.Metadata["kind"] == models.KindToolMissing {
			b.advise(models.AdvisoryWarning, models.ErrToolMissing, f.Description)
		}
	}

	// release the type before publishing so a subscriber can start the next scan right away
	b.scanMu.Lock()
	delete(b.inflight, scanType)
	b.scanMu.Unlock()

	b.hub.PublishScan(pubsub.ScanFinished{Type: scanType, Record: *rec})
}

// execute turns a panicking or misbehaving runner into a failed record.
func (b *Bridge) execute(scanType models.ScanType, runner ScanRunner, args ScanArgs) (rec *models.ScanRecord) {
	startedAt := b.now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("%s scan of %q panicked: %v", scanType, args.Target, r)
			rec = models.NewScanRecord(scanType, args.Target, startedAt)
			rec.Fail(models.ScanStatusFailed, errors.Errorf("scanner crashed: %v", r), b.now())
		}
	}()

	rec = runner.Run(b.ctx, args)
	if rec == nil {
		rec = models.NewScanRecord(scanType, args.Target, startedAt)
		rec.Fail(models.ScanStatusFailed, errors.New("scanner returned no result"), b.now())
	}
	return rec
}
