package chserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jpillora/requestlog"

	errors2 "github.com/openrport/rguard/server/api/errors"
	"github.com/openrport/rguard/server/api/middleware"
	"github.com/openrport/rguard/server/routes"
)

func (al *APIListener) initRouter() {
	r := mux.NewRouter()
	api := r.PathPrefix(routes.AllRoutesPrefix).Subrouter()

	secureAPI := api.NewRoute().Subrouter()
	secureAPI.Use(al.wrapWithAuthMiddleware(false))
	secureAPI.Use(middleware.MaxBytes(al.config.MaxRequestBytes))

	secureAPI.HandleFunc(routes.LiveRoute, al.handleGetLive).Methods(http.MethodGet)
	secureAPI.HandleFunc(routes.LiveStartRoute, al.handleStartLive).Methods(http.MethodPost)
	secureAPI.HandleFunc(routes.LiveStopRoute, al.handleStopLive).Methods(http.MethodPost)

	secureAPI.HandleFunc(routes.EventsRoute, al.handleGetEvents).Methods(http.MethodGet)
	secureAPI.HandleFunc(routes.EventsLoadRoute, al.handleLoadEvents).Methods(http.MethodPost)

	secureAPI.HandleFunc(routes.ScansRoute, al.handleGetScans).Methods(http.MethodGet)
	secureAPI.HandleFunc(routes.ScansRoute, al.handlePostScan).Methods(http.MethodPost)
	secureAPI.HandleFunc(routes.ScanStatusRoute, al.handleGetScanStatus).Methods(http.MethodGet)

	// browsers can't send headers with the handshake, the token may come as query param
	wsAPI := api.NewRoute().Subrouter()
	wsAPI.Use(al.wrapWithAuthMiddleware(true))
	wsAPI.HandleFunc(routes.WebSocketRoute, al.handlePushWS).Methods(http.MethodGet)

	if al.requestLogOptions != nil {
		r.Use(func(next http.Handler) http.Handler { return requestlog.WrapWith(next, *al.requestLogOptions) })
	}
	if al.accessLogFile != nil {
		r.Use(func(next http.Handler) http.Handler { return handlers.CombinedLoggingHandler(al.accessLogFile, next) })
	}

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(
		handlers.PrintRecoveryStack(true),
		handlers.RecoveryLogger(middleware.NewRecoveryLogger(al.Logger)),
	))

	r.NotFoundHandler = http.HandlerFunc(al.handleUnmatched)
	r.MethodNotAllowedHandler = http.HandlerFunc(al.handleUnmatched)

	al.router = r
}

var routeMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// handleUnmatched answers requests no route accepts. Subrouters don't report method
// mismatches to the parent, so the path is matched again with every method.
func (al *APIListener) handleUnmatched(w http.ResponseWriter, req *http.Request) {
	var allowed []string
	for _, method := range routeMethods {
		if method == req.Method {
			continue
		}
		alt := req.Clone(req.Context())
		alt.Method = method
		var match mux.RouteMatch
		if al.router.Match(alt, &match) && match.MatchErr == nil {
			allowed = append(allowed, method)
		}
	}

	if len(allowed) == 0 {
		al.jsonErrorResponseWithErrCode(w, http.StatusNotFound, errors2.ErrCodeNotFound, "not found")
		return
	}
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	al.jsonErrorResponseWithErrCode(w, http.StatusMethodNotAllowed, errors2.ErrCodeMethodNotAllowed, "method not allowed")
}

// Handler returns the router wrapped with the CORS handler when origins are configured.
// CORS has to wrap the router, preflight requests don't match any route.
func (al *APIListener) Handler() http.Handler {
	if len(al.config.CORS) == 0 {
		return al.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(al.config.CORS),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(al.router)
}
