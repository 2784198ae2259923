package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/config"
)

const clientIDValue = "cid"

// clientCookies issues the signed cookie that ties a browser to its session
// namespace. The cookie carries only a random id, never the logged-in user.
type clientCookies struct {
	store *sessions.CookieStore
	name  string
}

func newClientCookies(cfg config.AuthConfig) *clientCookies {
	name := cfg.CookieName
	if name == "" {
		name = "sm_client"
	}
	secret := []byte(cfg.CookieSecret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(int(cfg.CookieMaxAge / time.Second))
	return &clientCookies{store: store, name: name}
}

// clientID returns the id from the request cookie, minting and setting a new
// one when the cookie is missing or fails verification.
func (c *clientCookies) clientID(w http.ResponseWriter, r *http.Request) (string, error) {
	session, _ := c.store.Get(r, c.name)
	if id, ok := session.Values[clientIDValue].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	session.Values[clientIDValue] = id
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("save client cookie: %w", err)
	}
	return id, nil
}

type clientIDKey struct{}

func clientIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}

func (h *handlers) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.cookies.clientID(w, r)
		if err != nil {
			h.log.Error("client cookie failed", "error", err)
			writeError(w, http.StatusInternalServerError, "client session unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIDKey{}, id)))
	})
}

// store resolves the session store of the request's client, answering the
// request itself when none is available.
func (h *handlers) store(w http.ResponseWriter, r *http.Request) (*auth.Store, bool) {
	if h.deps.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return nil, false
	}
	s, err := h.deps.Clients.ForClient(clientIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, auth.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, "session store unavailable")
			return nil, false
		}
		h.log.Error("open client store failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session store failed")
		return nil, false
	}
	return s, true
}

func (h *handlers) requireSession(w http.ResponseWriter, r *http.Request) (*auth.Store, auth.SessionUser, bool) {
	s, ok := h.store(w, r)
	if !ok {
		return nil, auth.SessionUser{}, false
	}
	user, ok := s.CurrentSession()
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, auth.SessionUser{}, false
	}
	return s, user, true
}
