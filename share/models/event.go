package models

import "time"

type EventLevel string

const (
	EventLevelInfo     EventLevel = "Info"
	EventLevelWarning  EventLevel = "Warning"
	EventLevelError    EventLevel = "Error"
	EventLevelCritical EventLevel = "Critical"
)

func (l EventLevel) Valid() bool {
	switch l {
	case EventLevelInfo, EventLevelWarning, EventLevelError, EventLevelCritical:
		return true
	}
	return false
}

type EventItem struct {
	Timestamp time.Time  `json:"timestamp" db:"timestamp"`
	Level     EventLevel `json:"level" db:"level"`
	Source    string     `json:"source" db:"source"`
	Message   string     `json:"message" db:"message"`
}
