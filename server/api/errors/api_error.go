package errors

import (
	"net/http"
)

const (
	ErrCodeInvalidRequest   = "ERR_CODE_INVALID_REQUEST"
	ErrCodeUnauthorized     = "ERR_CODE_UNAUTHORIZED"
	ErrCodeScanBusy         = "ERR_CODE_SCAN_BUSY"
	ErrCodeUnavailable      = "ERR_CODE_UNAVAILABLE"
	ErrCodeNotFound         = "ERR_CODE_NOT_FOUND"
	ErrCodeMethodNotAllowed = "ERR_CODE_METHOD_NOT_ALLOWED"
)

// APIError carries the HTTP status and error code an error is answered with.
type APIError struct {
	Message    string
	Err        error
	HTTPStatus int
	ErrCode    string
}

func NewAPIError(statusCode int, errCode string, message string, err error) (ae APIError) {
	ae = APIError{
		HTTPStatus: statusCode,
		ErrCode:    errCode,
		Message:    message,
		Err:        err,
	}
	return ae
}

func NewBadRequest(message string, err error) APIError {
	return NewAPIError(http.StatusBadRequest, ErrCodeInvalidRequest, message, err)
}

func (ae APIError) Error() string {
	if ae.Err != nil {
		return ae.Err.Error()
	}

	return ae.Message
}

func (ae APIError) Unwrap() error {
	return ae.Err
}
