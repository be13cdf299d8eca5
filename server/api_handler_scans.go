package chserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openrport/rguard/client/scanners/network"
	"github.com/openrport/rguard/server/api"
	errors2 "github.com/openrport/rguard/server/api/errors"
	"github.com/openrport/rguard/server/routes"
	"github.com/openrport/rguard/share/models"
)

func (al *APIListener) handlePostScan(w http.ResponseWriter, r *http.Request) {
	var input api.ScanInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		al.jsonError(w, errors2.NewBadRequest("invalid JSON data", err))
		return
	}

	scanType, err := models.ParseScanType(input.Type)
	if err != nil {
		al.jsonError(w, errors2.NewBadRequest(err.Error(), nil))
		return
	}
	if input.Target == "" {
		al.jsonError(w, errors2.NewBadRequest("target is required", nil))
		return
	}
	if input.Mode != "" {
		if scanType != models.ScanTypeNetwork {
			al.jsonError(w, errors2.NewBadRequest("mode is only supported by network scans", nil))
			return
		}
		if _, err := network.ParseMode(input.Mode); err != nil {
			al.jsonError(w, errors2.NewBadRequest(err.Error(), nil))
			return
		}
	}

	err = al.bridge.Scan(scanType, input.ScanArgs)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrBusy):
		al.jsonError(w, errors2.NewAPIError(http.StatusConflict, errors2.ErrCodeScanBusy, "", err))
		return
	case errors.Is(err, models.ErrInvalidTarget):
		al.jsonError(w, errors2.NewBadRequest(err.Error(), nil))
		return
	default:
		al.jsonError(w, bridgeAPIError(err))
		return
	}

	al.Debugf("%s scan of %q accepted", scanType, input.Target)
	al.writeJSONResponse(w, http.StatusAccepted, api.NewSuccessPayload(api.ScanStatus{Type: scanType, Scanning: true}))
}

func (al *APIListener) handleGetScans(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		al.jsonError(w, err)
		return
	}

	scans, err := al.bridge.RecentScans(r.Context(), limit)
	if err != nil {
		al.jsonError(w, errors2.NewAPIError(http.StatusServiceUnavailable, errors2.ErrCodeUnavailable, "failed to read scans", err))
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewListPayload(scans, limit))
}

func (al *APIListener) handleGetScanStatus(w http.ResponseWriter, r *http.Request) {
	scanType, err := models.ParseScanType(mux.Vars(r)[routes.ParamScanType])
	if err != nil {
		al.jsonErrorResponse(w, http.StatusNotFound, err)
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewSuccessPayload(api.ScanStatus{
		Type:     scanType,
		Scanning: al.bridge.IsScanning(scanType),
	}))
}
