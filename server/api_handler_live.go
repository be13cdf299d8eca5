package chserver

import (
	"net/http"

	"github.com/openrport/rguard/server/api"
)

func (al *APIListener) handleGetLive(w http.ResponseWriter, r *http.Request) {
	al.writeJSONResponse(w, http.StatusOK, api.NewSuccessPayload(api.LiveStatus{Running: al.bridge.IsLive()}))
}

func (al *APIListener) handleStartLive(w http.ResponseWriter, r *http.Request) {
	al.bridge.StartLive()
	w.WriteHeader(http.StatusNoContent)
}

func (al *APIListener) handleStopLive(w http.ResponseWriter, r *http.Request) {
	al.bridge.StopLive()
	w.WriteHeader(http.StatusNoContent)
}
