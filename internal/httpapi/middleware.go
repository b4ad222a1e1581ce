package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/spitfire-app/spitfire-backend/internal/identity"
)

type ctxKey int

const ctxKeyUserID ctxKey = iota

// callerID returns the authenticated user id stored by the auth middleware.
func callerID(r *http.Request) string {
	uid, _ := r.Context().Value(ctxKeyUserID).(string)
	return uid
}

// bearerAuth resolves the Authorization bearer token through the identity
// provider and stashes the caller id on the request context. Every core
// operation receives that id explicitly; nothing reads ambient session state.
func (a *API) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("Authorization"))
		token = strings.TrimPrefix(token, "Bearer ")
		uid, err := a.idp.UserIDForToken(r.Context(), token)
		if err != nil {
			a.writeError(w, identity.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
