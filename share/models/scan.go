package models

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/share/random"
)

type ScanType string

const (
	ScanTypeNetwork ScanType = "network"
	ScanTypeFile    ScanType = "file"
	ScanTypeURL     ScanType = "url"
)

var AllScanTypes = []ScanType{ScanTypeNetwork, ScanTypeFile, ScanTypeURL}

func ParseScanType(s string) (ScanType, error) {
	for _, t := range AllScanTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidTarget, "unknown scan type %q", s)
}

type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusTimedOut  ScanStatus = "timed_out"
)

func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusTimedOut
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ScanFinding struct {
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DiagnosticFinding describes why a scan could not produce a regular result.
// The taxonomy kind of err is kept in the "kind" metadata key.
func DiagnosticFinding(severity Severity, err error, description string) ScanFinding {
	return ScanFinding{
		Severity:    severity,
		Description: description,
		Metadata:    map[string]string{"kind": KindOf(err)},
	}
}

// ScanRecord is the result of one scanner invocation. It starts pending and moves to
// exactly one terminal status; findings can only be added before that.
type ScanRecord struct {
	ID         string            `json:"id"`
	Type       ScanType          `json:"type"`
	Target     string            `json:"target"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Status     ScanStatus        `json:"status"`
	Findings   []ScanFinding     `json:"findings"`
	Meta       map[string]string `json:"meta,omitempty"`
}

func NewScanRecord(scanType ScanType, target string, startedAt time.Time) *ScanRecord {
	return &ScanRecord{
		ID:        random.ULID(startedAt),
		Type:      scanType,
		Target:    target,
		StartedAt: startedAt.UTC(),
		Status:    ScanStatusPending,
		Findings:  []ScanFinding{},
	}
}

func (r *ScanRecord) AddFinding(f ScanFinding) error {
	if r.Status.IsTerminal() {
		return errors.Wrapf(ErrInvalidRecord, "scan %s is already %s", r.ID, r.Status)
	}
	r.Findings = append(r.Findings, f)
	return nil
}

func (r *ScanRecord) SetMeta(key, value string) {
	if r.Meta == nil {
		r.Meta = map[string]string{}
	}
	r.Meta[key] = value
}

func (r *ScanRecord) Finish(status ScanStatus, at time.Time) error {
	if !status.IsTerminal() {
		return errors.Wrapf(ErrInvalidRecord, "%s is not a terminal status", status)
	}
	if r.Status.IsTerminal() {
		return errors.Wrapf(ErrInvalidRecord, "scan %s is already %s", r.ID, r.Status)
	}
	finishedAt := at.UTC()
	r.FinishedAt = &finishedAt
	r.Status = status
	return nil
}

// Fail appends a diagnostic finding for err and finishes the record with status.
// It is a no-op on records that already reached a terminal status.
func (r *ScanRecord) Fail(status ScanStatus, err error, at time.Time) {
	if r.Status.IsTerminal() {
		return
	}
	_ = r.AddFinding(DiagnosticFinding(SeverityInfo, err, err.Error()))
	_ = r.Finish(status, at)
}

func (r *ScanRecord) String() string {
	return fmt.Sprintf("%s scan %s of %q (%s)", r.Type, r.ID, r.Target, r.Status)
}
