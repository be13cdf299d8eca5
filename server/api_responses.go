package chserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/openrport/rguard/server/api"
	errors2 "github.com/openrport/rguard/server/api/errors"
	"github.com/openrport/rguard/share/logger"
)

var (
	// this will be used by default for tests, but otherwise should be overridden during server init
	errLog = logger.NewLogger("api-error-response", logger.LogOutput{File: os.Stdout}, logger.LogLevelDebug)
)

func SetAPIResponsesErrorLog(l *logger.Logger) {
	errLog = l
}

func writeErrorPayloadLog(errPayload api.ErrorPayload) {
	if errLog != nil && errLog.Level == logger.LogLevelDebug {
		errLog.Debugf("payload: %+v", errPayload)
	}
}

func (al *APIListener) writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	b, err := json.Marshal(response)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write(b); err != nil {
		al.Errorf("error writing response: %s", err)
	}
}

func (al *APIListener) jsonErrorResponse(w http.ResponseWriter, statusCode int, err error) {
	errPayload := api.NewErrAPIPayloadFromError(err, "", "")
	writeErrorPayloadLog(errPayload)
	al.writeJSONResponse(w, statusCode, errPayload)
}

// jsonError answers with the status and code of an APIError, anything else is a 500.
func (al *APIListener) jsonError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errCode := ""
	title := err.Error()
	detail := ""
	var apiErr errors2.APIError
	if errors.As(err, &apiErr) {
		statusCode = apiErr.HTTPStatus
		errCode = apiErr.ErrCode
		if apiErr.Message != "" {
			title = apiErr.Message
			if apiErr.Err != nil {
				detail = apiErr.Err.Error()
			}
		}
	}

	if statusCode >= http.StatusInternalServerError {
		al.Errorf("%s", err)
	}
	errPayload := api.NewErrAPIPayloadFromMessage(errCode, title, detail)
	writeErrorPayloadLog(errPayload)
	al.writeJSONResponse(w, statusCode, errPayload)
}

func (al *APIListener) jsonErrorResponseWithErrCode(w http.ResponseWriter, statusCode int, errCode, title string) {
	errPayload := api.NewErrAPIPayloadFromMessage(errCode, title, "")
	writeErrorPayloadLog(errPayload)
	al.writeJSONResponse(w, statusCode, errPayload)
}
