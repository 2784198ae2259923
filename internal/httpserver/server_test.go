package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scholarmind/portal/internal/audit"
	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/config"
	"scholarmind/portal/internal/guard"
	"scholarmind/portal/internal/kv"
	"scholarmind/portal/internal/library"
)

type testEnv struct {
	srv       *httptest.Server
	auditPath string
	clients   *auth.Directory
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeps(t *testing.T) (Deps, string) {
	t.Helper()
	dir, err := auth.NewDirectory(kv.NewMemory(), auth.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewDirectory() error: %v", err)
	}
	t.Cleanup(dir.Close)

	auditPath := filepath.Join(t.TempDir(), "audit.log")
	return Deps{
		Clients:   dir,
		Catalogue: library.Default(),
		Rules:     guard.DefaultRules(),
		Audit:     audit.NewLogger(auditPath),
		Logger:    quietLogger(),
		Cookie: config.AuthConfig{
			CookieName:   "sm_client",
			CookieSecret: "test-secret-test-secret-test-secret",
			CookieMaxAge: time.Hour,
		},
	}, auditPath
}

func newTestEnv(t *testing.T, mutate func(*Deps)) testEnv {
	t.Helper()
	deps, auditPath := newTestDeps(t)
	if mutate != nil {
		mutate(&deps)
	}
	srv := httptest.NewServer(loggingMiddleware(deps.Logger, NewHandler(deps)))
	t.Cleanup(srv.Close)
	clients, _ := deps.Clients.(*auth.Directory)
	return testEnv{srv: srv, auditPath: auditPath, clients: clients}
}

// newBrowser returns a client with its own cookie jar that does not follow
// redirects, so guard responses can be inspected.
func (e testEnv) newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error: %v", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e testEnv) do(t *testing.T, c *http.Client, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out
}

func (e testEnv) login(t *testing.T, c *http.Client, email, password, from string) (*http.Response, []byte) {
	t.Helper()
	return e.do(t, c, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
		"from":     from,
	})
}

func decodeBody(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode body %q: %v", b, err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestInfo(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)
	req := httptest.NewRequest(http.MethodGet, "/v1/info", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec.Body.Bytes())
	if body["service"] != "scholarmind-portal" {
		t.Fatalf("unexpected info body: %v", body)
	}
}

func TestMethodNotAllowedAndUnknownRoute(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "method not allowed") {
		t.Fatalf("unexpected 405 body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLoginSuccessSetsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)

	resp, body := env.login(t, c, "axel@axel.fr", "123", "/papers/p1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	got := decodeBody(t, body)
	if got["redirect"] != "/papers/p1" {
		t.Fatalf("expected redirect /papers/p1, got %v", got["redirect"])
	}
	user, _ := got["user"].(map[string]any)
	if user["email"] != "axel@axel.fr" || user["username"] != "Axel" {
		t.Fatalf("unexpected user: %v", got["user"])
	}
	if _, ok := user["password"]; ok {
		t.Fatalf("session user must not carry a password: %v", user)
	}

	resp, body = env.do(t, c, http.MethodGet, "/v1/auth/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from me, got %d", resp.StatusCode)
	}
	if decodeBody(t, body)["email"] != "axel@axel.fr" {
		t.Fatalf("unexpected me body: %s", body)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)

	resp, body := env.login(t, c, "axel@axel.fr", "wrong", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if decodeBody(t, body)["error"] != "Invalid credentials" {
		t.Fatalf("unexpected error body: %s", body)
	}

	resp, _ = env.do(t, c, http.MethodGet, "/v1/auth/me", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 from me after failed login, got %d", resp.StatusCode)
	}

	blank := []map[string]string{
		{"email": "axel@axel.fr"},
		{"password": "123"},
		{"email": "", "password": ""},
		{},
	}
	for _, req := range blank {
		resp, body = env.do(t, c, http.MethodPost, "/v1/auth/login", req)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%v: expected 401, got %d", req, resp.StatusCode)
		}
		if decodeBody(t, body)["error"] != "Invalid credentials" {
			t.Fatalf("%v: unexpected error body: %s", req, body)
		}
	}
}

func TestLoginRejectsForeignRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, from := range []string{"", "https://evil.example/x", "//evil.example", "libraries"} {
		c := env.newBrowser(t)
		_, body := env.login(t, c, "vincent@vincent.fr", "123", from)
		if got := decodeBody(t, body)["redirect"]; got != "/libraries" {
			t.Fatalf("from=%q: expected redirect /libraries, got %v", from, got)
		}
	}
}

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)

	resp, _ := env.do(t, c, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": "zoe@zoe.fr", "password": "pw",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing username, got %d", resp.StatusCode)
	}

	resp, body := env.do(t, c, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": "zoe@zoe.fr", "password": "pw", "username": "Zoe",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "pw") {
		t.Fatalf("register response leaked the password: %s", body)
	}

	// Registration does not log in.
	resp, _ = env.do(t, c, http.MethodGet, "/v1/auth/me", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after register, got %d", resp.StatusCode)
	}

	other := env.newBrowser(t)
	resp, _ = env.login(t, other, "zoe@zoe.fr", "pw", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected new user to log in from another client, got %d", resp.StatusCode)
	}

	_, body = env.do(t, c, http.MethodGet, "/v1/auth/users", nil)
	var list struct {
		Items []auth.UserView `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(list.Items) != 3 || list.Items[2].Email != "zoe@zoe.fr" {
		t.Fatalf("unexpected roster: %+v", list.Items)
	}
	if strings.Contains(string(body), "password") {
		t.Fatalf("roster leaked passwords: %s", body)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)
	env.login(t, c, "axel@axel.fr", "123", "")

	resp, _ := env.do(t, c, http.MethodPost, "/v1/auth/logout", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, c, http.MethodGet, "/v1/auth/me", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}

	// Logging out without a session is harmless.
	resp, _ = env.do(t, c, http.MethodPost, "/v1/auth/logout", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for repeated logout, got %d", resp.StatusCode)
	}
}

func TestClientsHaveSeparateSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.newBrowser(t)
	b := env.newBrowser(t)

	env.login(t, a, "axel@axel.fr", "123", "")

	resp, _ := env.do(t, b, http.MethodGet, "/v1/auth/me", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected second client to stay logged out, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, a, http.MethodGet, "/v1/auth/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected first client to stay logged in, got %d", resp.StatusCode)
	}
}

func TestTamperedCookieGetsFreshClient(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)
	env.login(t, c, "axel@axel.fr", "123", "")

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "sm_client", Value: "forged"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged cookie, got %d", resp.StatusCode)
	}
	if len(resp.Cookies()) == 0 {
		t.Fatalf("expected a fresh client cookie")
	}
}

func TestLibraryRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)

	resp, _ := env.do(t, c, http.MethodGet, "/v1/libraries", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", resp.StatusCode)
	}

	env.login(t, c, "axel@axel.fr", "123", "")

	resp, body := env.do(t, c, http.MethodGet, "/v1/libraries", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Items []library.Folder `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode libraries: %v", err)
	}
	if len(list.Items) != 3 {
		t.Fatalf("expected 3 libraries, got %d", len(list.Items))
	}

	resp, body = env.do(t, c, http.MethodGet, "/v1/libraries/f1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for f1, got %d", resp.StatusCode)
	}
	var detail struct {
		Library library.Folder  `json:"library"`
		Papers  []library.Paper `json:"papers"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("decode library: %v", err)
	}
	if detail.Library.ID != "f1" || len(detail.Papers) != 2 {
		t.Fatalf("unexpected library detail: %+v", detail)
	}

	resp, body = env.do(t, c, http.MethodGet, "/v1/libraries/zzz", nil)
	if resp.StatusCode != http.StatusNotFound || decodeBody(t, body)["error"] != "Library not found" {
		t.Fatalf("expected inline 404 for unknown library, got %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, c, http.MethodGet, "/v1/papers/p3", nil)
	if resp.StatusCode != http.StatusOK || decodeBody(t, body)["folder_id"] != "f2" {
		t.Fatalf("unexpected paper response: %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, c, http.MethodGet, "/v1/papers/zzz", nil)
	if resp.StatusCode != http.StatusNotFound || decodeBody(t, body)["error"] != "Paper not found" {
		t.Fatalf("expected inline 404 for unknown paper, got %d %s", resp.StatusCode, body)
	}
}

func TestPaperSearchAndPagination(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)

	resp, _ := env.do(t, c, http.MethodGet, "/v1/papers/search/retrieval", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", resp.StatusCode)
	}

	env.login(t, c, "axel@axel.fr", "123", "")

	var found struct {
		Items []library.Paper `json:"items"`
	}
	resp, body := env.do(t, c, http.MethodGet, "/v1/papers/search/Retrieval", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &found); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(found.Items) != 2 || found.Items[0].ID != "p3" || found.Items[1].ID != "p4" {
		t.Fatalf("unexpected search result %+v", found.Items)
	}

	_, body = env.do(t, c, http.MethodGet, "/v1/papers/search/rag.pdf?limit=1", nil)
	found.Items = nil
	if err := json.Unmarshal(body, &found); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(found.Items) != 1 || found.Items[0].ID != "p3" {
		t.Fatalf("unexpected filename search result %+v", found.Items)
	}

	var list struct {
		Items []library.Folder `json:"items"`
		Total int              `json:"total"`
	}
	_, body = env.do(t, c, http.MethodGet, "/v1/libraries?limit=1&offset=1", nil)
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode libraries: %v", err)
	}
	if list.Total != 3 || len(list.Items) != 1 || list.Items[0].ID != "f2" {
		t.Fatalf("unexpected page %+v", list)
	}

	var detail struct {
		Papers []library.Paper `json:"papers"`
	}
	_, body = env.do(t, c, http.MethodGet, "/v1/libraries/f1?offset=1", nil)
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("decode library: %v", err)
	}
	if len(detail.Papers) != 1 || detail.Papers[0].ID != "p2" {
		t.Fatalf("unexpected paper page %+v", detail.Papers)
	}

	for _, path := range []string{"/v1/libraries?limit=-1", "/v1/libraries?offset=x", "/v1/papers/search/rag?limit=abc"} {
		resp, _ := env.do(t, c, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestGuardRedirectsProtectedPages(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)

	cases := map[string]string{
		"/libraries":      "/login?from=%2Flibraries",
		"/account":        "/login?from=%2Faccount",
		"/libraries/f1":   "/login?from=%2Flibraries%2Ff1",
		"/papers/p1?x=1":  "/login?from=%2Fpapers%2Fp1%3Fx%3D1",
		"/papers/p1/view": "/login?from=%2Fpapers%2Fp1%2Fview",
	}
	for path, want := range cases {
		resp, _ := env.do(t, c, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("%s: expected 302, got %d", path, resp.StatusCode)
		}
		if got := resp.Header.Get("Location"); got != want {
			t.Fatalf("%s: expected Location %q, got %q", path, want, got)
		}
	}

	for _, path := range []string{"/", "/login", "/about"} {
		resp, body := env.do(t, c, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		if decodeBody(t, body)["protected"] != false {
			t.Fatalf("%s: expected unprotected page descriptor, got %s", path, body)
		}
	}

	b, err := os.ReadFile(env.auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(b), `"action":"guard.redirect"`) {
		t.Fatalf("expected guard redirect in audit log:\n%s", b)
	}
}

func TestAnonymousPagesRetainNoClientState(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	for i := 0; i < 1000; i++ {
		path := "/"
		if i%2 == 1 {
			path = "/libraries"
		}
		resp, _ := env.do(t, c, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
			t.Fatalf("GET %s: unexpected status %d", path, resp.StatusCode)
		}
	}
	if n := env.clients.Live(); n != 0 {
		t.Fatalf("expected no retained client stores, got %d", n)
	}
}

func TestPublicPageCarriesSessionUser(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)
	env.login(t, c, "vincent@vincent.fr", "123", "")

	_, body := env.do(t, c, http.MethodGet, "/about", nil)
	page := decodeBody(t, body)
	user, _ := page["user"].(map[string]any)
	if page["protected"] != false || user["email"] != "vincent@vincent.fr" {
		t.Fatalf("unexpected public page descriptor %v", page)
	}
}

func TestLoginPageThenProtectedPage(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)

	resp, _ := env.do(t, c, http.MethodGet, "/libraries", nil)
	loginURL := resp.Header.Get("Location")

	resp, body := env.do(t, c, http.MethodGet, loginURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected login page, got %d", resp.StatusCode)
	}
	from, _ := decodeBody(t, body)["from"].(string)
	if from != "/libraries" {
		t.Fatalf("expected login page to carry from=/libraries, got %q", from)
	}

	_, body = env.login(t, c, "axel@axel.fr", "123", from)
	target, _ := decodeBody(t, body)["redirect"].(string)

	resp, body = env.do(t, c, http.MethodGet, target, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %s after login, got %d", target, resp.StatusCode)
	}
	page := decodeBody(t, body)
	if page["protected"] != true {
		t.Fatalf("expected protected page descriptor, got %v", page)
	}
	user, _ := page["user"].(map[string]any)
	if user["email"] != "axel@axel.fr" {
		t.Fatalf("expected page to carry the session user, got %v", page["user"])
	}

	env.do(t, c, http.MethodPost, "/v1/auth/logout", nil)
	resp, _ = env.do(t, c, http.MethodGet, target, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect after logout, got %d", resp.StatusCode)
	}
}

func TestFrontendSPAFallback(t *testing.T) {
	dist := t.TempDir()
	if err := os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html>portal</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dist, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir assets: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dist, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	env := newTestEnv(t, func(d *Deps) { d.FrontendDistDir = dist })
	c := env.newBrowser(t)

	resp, body := env.do(t, c, http.MethodGet, "/assets/app.js", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "console.log(1)" {
		t.Fatalf("expected asset, got %d %q", resp.StatusCode, body)
	}

	resp, body = env.do(t, c, http.MethodGet, "/login", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "portal") {
		t.Fatalf("expected SPA index for /login, got %d %q", resp.StatusCode, body)
	}

	resp, _ = env.do(t, c, http.MethodGet, "/account", nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected guard to run before the bundle, got %d", resp.StatusCode)
	}
}

func TestEventsStreamLoginAndLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newBrowser(t)
	// Mint the client cookie first so the stream and the login share it.
	env.do(t, c, http.MethodGet, "/v1/auth/me", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/v1/auth/events", nil)
	streamClient := &http.Client{Jar: c.Jar}
	resp, err := streamClient.Do(req)
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	if err != nil || line != ": ready\n" {
		t.Fatalf("expected ready comment, got %q (%v)", line, err)
	}
	if n := env.clients.Live(); n != 1 {
		t.Fatalf("expected the stream to hold one client feed, got %d", n)
	}

	env.login(t, c, "axel@axel.fr", "123", "")
	ev := readEvent(t, rd)
	if ev.name != auth.EventName || !strings.Contains(ev.data, `"email":"axel@axel.fr"`) {
		t.Fatalf("unexpected login event: %+v", ev)
	}

	env.do(t, c, http.MethodPost, "/v1/auth/logout", nil)
	ev = readEvent(t, rd)
	if ev.name != auth.EventName || !strings.Contains(ev.data, `"user":null`) {
		t.Fatalf("unexpected logout event: %+v", ev)
	}

	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for env.clients.Live() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client feed still held after the stream closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, rd *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsStreamEndsOnShutdown(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := newHandlers(deps)
	srv := httptest.NewServer(loggingMiddleware(deps.Logger, h.router()))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/auth/events")
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer resp.Body.Close()
	rd := bufio.NewReader(resp.Body)
	if line, err := rd.ReadString('\n'); err != nil || line != ": ready\n" {
		t.Fatalf("expected ready comment, got %q (%v)", line, err)
	}

	h.closeStreams()
	h.closeStreams()

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(rd)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean end of stream, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event stream still open after shutdown")
	}
}
