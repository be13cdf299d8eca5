package bearer

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const AccessTokenQueryParam = "access_token"

func GetBearerToken(req *http.Request) (string, bool) {
	auth := req.Header.Get("Authorization")
	const prefix = "Bearer "
	// Case insensitive prefix match.
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

// GetAccessToken returns the token passed as query parameter. Browsers can't set headers
// on WebSocket handshakes.
func GetAccessToken(req *http.Request) (string, bool) {
	token := req.URL.Query().Get(AccessTokenQueryParam)
	return token, token != ""
}

// StaticToken authorizes requests carrying one configured token. An empty token
// authorizes everything.
type StaticToken struct {
	token []byte
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: []byte(token)}
}

func (s *StaticToken) Enabled() bool {
	return len(s.token) > 0
}

// Authorized checks the bearer header and, when allowQuery is set, the access_token
// query parameter.
func (s *StaticToken) Authorized(req *http.Request, allowQuery bool) bool {
	if !s.Enabled() {
		return true
	}
	token, ok := GetBearerToken(req)
	if !ok && allowQuery {
		token, ok = GetAccessToken(req)
	}
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), s.token) == 1
}
