package chserver

import (
	"net/http"

	"github.com/gorilla/mux"

	errors2 "github.com/openrport/rguard/server/api/errors"
)

func (al *APIListener) wrapWithAuthMiddleware(allowQueryToken bool) mux.MiddlewareFunc {
	return func(f http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !al.auth.Authorized(r, allowQueryToken) {
				al.Debugf("unauthorized request %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
				al.jsonErrorResponseWithErrCode(w, http.StatusUnauthorized, errors2.ErrCodeUnauthorized, "unauthorized")
				return
			}
			f.ServeHTTP(w, r)
		})
	}
}
