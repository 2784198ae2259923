package guard

import (
	"context"
	"net/http"

	"scholarmind/portal/internal/auth"
)

// SessionLookup resolves the session of the client behind a request.
type SessionLookup func(r *http.Request) (auth.SessionUser, bool)

type sessionKey struct{}

func WithSession(ctx context.Context, u auth.SessionUser) context.Context {
	return context.WithValue(ctx, sessionKey{}, u)
}

func SessionFrom(ctx context.Context) (auth.SessionUser, bool) {
	u, ok := ctx.Value(sessionKey{}).(auth.SessionUser)
	return u, ok
}

// Middleware redirects requests for protected pages without a session to the
// login page. Public pages pass without a session lookup; protected pages
// that pass carry the session in their context.
func Middleware(rules Rules, lookup SessionLookup, onRedirect func(r *http.Request, to string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rules.Protected(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			user, ok := lookup(r)
			if !ok {
				to := rules.LoginURL(r.URL.RequestURI())
				if onRedirect != nil {
					onRedirect(r, to)
				}
				http.Redirect(w, r, to, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), user)))
		})
	}
}
