package chserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/openrport/rguard/server/api"
	errors2 "github.com/openrport/rguard/server/api/errors"
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/server/routes"
)

func (al *APIListener) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		al.jsonError(w, err)
		return
	}

	events, err := al.bridge.RecentEvents(r.Context(), limit)
	if err != nil {
		al.jsonError(w, errors2.NewAPIError(http.StatusServiceUnavailable, errors2.ErrCodeUnavailable, "failed to read events", err))
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewListPayload(events, limit))
}

// handleLoadEvents starts reading the configured sources. Results are pushed to
// WebSocket subscribers and can be read back from the events list.
func (al *APIListener) handleLoadEvents(w http.ResponseWriter, r *http.Request) {
	if err := al.bridge.LoadRecentEvents(); err != nil {
		al.jsonError(w, bridgeAPIError(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get(routes.ParamLimit)
	if limitStr == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		return 0, errors2.NewBadRequest(fmt.Sprintf("%q must be a positive number, got %q", routes.ParamLimit, limitStr), nil)
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

func bridgeAPIError(err error) error {
	if errors.Is(err, bridge.ErrClosed) {
		return errors2.NewAPIError(http.StatusServiceUnavailable, errors2.ErrCodeUnavailable, "", err)
	}
	return err
}
