package models

import "errors"

var (
	ErrToolMissing      = errors.New("scanner executable not found")
	ErrInvalidTarget    = errors.New("invalid scan target")
	ErrRestrictedSource = errors.New("log source requires elevated privileges")
	ErrTimeout          = errors.New("scan exceeded its time budget")
	ErrRemoteService    = errors.New("reputation service error")
	ErrPersistence      = errors.New("persistence error")
	ErrBusy             = errors.New("a scan of this type is already running")
	ErrInvalidRecord    = errors.New("invalid scan record")
	ErrToolFailed       = errors.New("scanner executable failed")
	ErrMalformedReport  = errors.New("scanner produced an unreadable report")
)

const (
	KindToolMissing      = "ToolMissing"
	KindInvalidTarget    = "InvalidTarget"
	KindRestrictedSource = "RestrictedSource"
	KindTimeout          = "Timeout"
	KindRemoteService    = "RemoteServiceError"
	KindPersistence      = "PersistenceError"
	KindBusy             = "Busy"
	KindToolFailed       = "ToolFailed"
	KindMalformedReport  = "MalformedReport"
	KindInternal         = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrToolMissing, KindToolMissing},
	{ErrInvalidTarget, KindInvalidTarget},
	{ErrRestrictedSource, KindRestrictedSource},
	{ErrTimeout, KindTimeout},
	{ErrRemoteService, KindRemoteService},
	{ErrPersistence, KindPersistence},
	{ErrBusy, KindBusy},
	{ErrToolFailed, KindToolFailed},
	{ErrMalformedReport, KindMalformedReport},
}

// KindOf returns the taxonomy name of err, or KindInternal when err is outside of it.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
