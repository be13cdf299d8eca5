package models

import "time"

type AdvisoryLevel string

const (
	AdvisoryInfo    AdvisoryLevel = "info"
	AdvisoryWarning AdvisoryLevel = "warning"
	AdvisoryError   AdvisoryLevel = "error"
)

// Advisory is a non-fatal notice about a degraded but non-blocking condition.
type Advisory struct {
	Level     AdvisoryLevel `json:"level"`
	Kind      string        `json:"kind"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewAdvisory(level AdvisoryLevel, err error, message string) Advisory {
	return Advisory{
		Level:     level,
		Kind:      KindOf(err),
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
