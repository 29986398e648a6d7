package api

import (
	"net/http"
	"strings"

	"chat-relay/domain"

	"github.com/julienschmidt/httprouter"
)

type authenticatedHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, identity domain.Identity)

// authenticated guards a route behind the bearer-token contract. The
// verifier is the same one the websocket handshake uses, so both paths
// accept and reject exactly the same credentials.
func (a *API) authenticated(next authenticatedHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			a.fail(w, http.StatusUnauthorized, "No token provided", nil)
			return
		}
		identity, err := a.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			a.fail(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}
		next(w, r, ps, identity)
	}
}
