package api

import (
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/share/models"
)

// SuccessPayload represents a uniform format for all successful API responses.
type SuccessPayload struct {
	Data interface{} `json:"data"`
	Meta interface{} `json:"meta,omitempty"`
}

func NewSuccessPayload(data interface{}) SuccessPayload {
	return SuccessPayload{
		Data: data,
	}
}

type ListMeta struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

func NewListPayload[T any](items []T, limit int) SuccessPayload {
	return SuccessPayload{
		Data: items,
		Meta: ListMeta{Count: len(items), Limit: limit},
	}
}

// ErrorPayload represents a uniform format for all error API responses.
type ErrorPayload struct {
	Errors []ErrorPayloadItem `json:"errors"`
}

// ErrorPayloadItem represents a uniform format for a single error used in API responses.
type ErrorPayloadItem struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func NewErrAPIPayloadFromMessage(code, title, detail string) ErrorPayload {
	return ErrorPayload{
		Errors: []ErrorPayloadItem{
			{
				Code:   code,
				Title:  title,
				Detail: detail,
			},
		},
	}
}

func NewErrAPIPayloadFromError(err error, code, detail string) ErrorPayload {
	return NewErrAPIPayloadFromMessage(code, err.Error(), detail)
}

type LiveStatus struct {
	Running bool `json:"running"`
}

type ScanStatus struct {
	Type     models.ScanType `json:"type"`
	Scanning bool            `json:"scanning"`
}

// ScanInput is the body of a scan request.
type ScanInput struct {
	Type string `json:"type"`
	bridge.ScanArgs
}

type PushType string

const (
	PushTypeSnapshot PushType = "snapshot"
	PushTypeEvents   PushType = "events"
	PushTypeScan     PushType = "scan"
	PushTypeAdvisory PushType = "advisory"
)

// PushMessage is one message pushed to a WebSocket subscriber.
type PushMessage struct {
	Type PushType    `json:"type"`
	Data interface{} `json:"data"`
}
