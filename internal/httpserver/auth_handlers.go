package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"scholarmind/portal/internal/audit"
	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/guard"
)

const defaultLanding = "/libraries"

func (h *handlers) registerAuthHandlers(r *mux.Router) {
	r.HandleFunc("/auth/users", h.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/auth/events", h.events).Methods(http.MethodGet)
}

func (h *handlers) listUsers(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	users := h.deps.Clients.Roster()
	if users == nil {
		users = []auth.UserView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "email, password and username are required")
		return
	}

	s, ok := h.store(w, r)
	if !ok {
		return
	}
	if err := s.RegisterUser(req.Email, req.Password, req.Username); err != nil {
		h.log.Error("register failed", "email", req.Email, "error", err)
		h.audit(r, audit.Entry{Email: req.Email, Action: audit.ActionRegister, Outcome: audit.OutcomeFailure, Detail: err.Error()})
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	h.audit(r, audit.Entry{Email: req.Email, Action: audit.ActionRegister})
	writeJSON(w, http.StatusCreated, auth.UserView{Email: req.Email, Username: req.Username})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		From     string `json:"from"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Blank fields match no account and fail like any other pair.
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	user, err := s.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.audit(r, audit.Entry{Email: req.Email, Action: audit.ActionLogin, Outcome: audit.OutcomeFailure, Detail: "invalid credentials"})
			writeError(w, http.StatusUnauthorized, auth.InvalidCredentialsMessage)
			return
		}
		h.log.Error("login failed", "email", req.Email, "error", err)
		h.audit(r, audit.Entry{Email: req.Email, Action: audit.ActionLogin, Outcome: audit.OutcomeFailure, Detail: err.Error()})
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.audit(r, audit.Entry{Email: user.Email, Action: audit.ActionLogin})

	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"redirect": guard.SafeReturn(req.From, defaultLanding),
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	prev, _ := s.CurrentSession()
	if err := s.Logout(); err != nil {
		h.log.Error("logout failed", "error", err)
		h.audit(r, audit.Entry{Email: prev.Email, Action: audit.ActionLogout, Outcome: audit.OutcomeFailure, Detail: err.Error()})
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.audit(r, audit.Entry{Email: prev.Email, Action: audit.ActionLogout})
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	_, user, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}
