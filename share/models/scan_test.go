package models

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRecordLifecycle(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := NewScanRecord(ScanTypeFile, "/tmp/x", started)

	assert.Equal(t, ScanStatusPending, rec.Status)
	assert.Nil(t, rec.FinishedAt)
	assert.NotEmpty(t, rec.ID)

	require.NoError(t, rec.AddFinding(ScanFinding{Severity: SeverityLow, Description: "first"}))
	require.NoError(t, rec.Finish(ScanStatusCompleted, started.Add(time.Second)))
	require.NotNil(t, rec.FinishedAt)
	assert.Equal(t, started.Add(time.Second), *rec.FinishedAt)

	err := rec.Finish(ScanStatusFailed, started.Add(2*time.Second))
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Equal(t, ScanStatusCompleted, rec.Status)

	err = rec.AddFinding(ScanFinding{Severity: SeverityLow, Description: "late"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Len(t, rec.Findings, 1)
}

func TestScanRecordFinishRejectsPending(t *testing.T) {
	rec := NewScanRecord(ScanTypeURL, "https://example.com", time.Now())
	err := rec.Finish(ScanStatusPending, time.Now())
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Nil(t, rec.FinishedAt)
}

func TestScanRecordFail(t *testing.T) {
	rec := NewScanRecord(ScanTypeNetwork, "10.0.0.1", time.Now())
	rec.Fail(ScanStatusTimedOut, errors.Wrap(ErrTimeout, "nmap"), time.Now())

	assert.Equal(t, ScanStatusTimedOut, rec.Status)
	require.Len(t, rec.Findings, 1)
	assert.Equal(t, KindTimeout, rec.Findings[0].Metadata["kind"])

	rec.Fail(ScanStatusFailed, ErrToolMissing, time.Now())
	assert.Equal(t, ScanStatusTimedOut, rec.Status)
	assert.Len(t, rec.Findings, 1)
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		err  error
		kind string
	}{
		{nil, ""},
		{ErrBusy, KindBusy},
		{errors.Wrap(ErrMalformedReport, "nmap"), KindMalformedReport},
		{errors.Wrap(ErrRestrictedSource, "Security"), KindRestrictedSource},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.kind, KindOf(tc.err))
	}
}

func TestParseScanType(t *testing.T) {
	st, err := ParseScanType("url")
	require.NoError(t, err)
	assert.Equal(t, ScanTypeURL, st)

	_, err = ParseScanType("Url")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
