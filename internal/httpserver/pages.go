package httpserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"scholarmind/portal/internal/audit"
	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/guard"
)

// pages serves every non-API GET through the route guard.
func (h *handlers) pages() http.Handler {
	onRedirect := func(r *http.Request, to string) {
		h.log.Debug("guard redirect", "path", r.URL.Path, "to", to)
		h.audit(r, audit.Entry{Action: audit.ActionRedirect, Path: r.URL.RequestURI(), Detail: to})
	}

	guarded := guard.Middleware(h.deps.Rules, h.sessionOf, onRedirect)
	return h.withClient(guarded(h.frontend()))
}

func (h *handlers) sessionOf(r *http.Request) (auth.SessionUser, bool) {
	if h.deps.Clients == nil {
		return auth.SessionUser{}, false
	}
	return h.deps.Clients.CurrentSession(clientIDFrom(r.Context()))
}

func (h *handlers) frontend() http.Handler {
	distDir := strings.TrimSpace(h.deps.FrontendDistDir)
	indexPath := filepath.Join(distDir, "index.html")
	if distDir == "" {
		return http.HandlerFunc(h.pageDescriptor)
	}
	if _, err := os.Stat(indexPath); err != nil {
		return http.HandlerFunc(h.pageDescriptor)
	}

	fileServer := http.FileServer(http.Dir(distDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := path.Clean(r.URL.Path)
		if cleanPath == "." || cleanPath == "/" {
			http.ServeFile(w, r, indexPath)
			return
		}

		fullPath := filepath.Join(distDir, strings.TrimPrefix(cleanPath, "/"))
		info, err := os.Stat(fullPath)
		if err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		// SPA fallback.
		http.ServeFile(w, r, indexPath)
	})
}

// pageDescriptor stands in for the bundle when none is deployed.
func (h *handlers) pageDescriptor(w http.ResponseWriter, r *http.Request) {
	page := map[string]any{
		"path":      r.URL.Path,
		"protected": h.deps.Rules.Protected(r.URL.Path),
		"user":      nil,
	}
	if user, ok := guard.SessionFrom(r.Context()); ok {
		page["user"] = user
	} else if user, ok := h.sessionOf(r); ok {
		page["user"] = user
	}
	if r.URL.Path == h.deps.Rules.LoginPath() {
		page["from"] = guard.SafeReturn(r.URL.Query().Get("from"), defaultLanding)
	}
	writeJSON(w, http.StatusOK, page)
}
