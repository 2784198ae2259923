package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ActionLogin    = "auth.login"
	ActionLogout   = "auth.logout"
	ActionRegister = "auth.register"
	ActionRedirect = "guard.redirect"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is one JSON line in the audit log. Passwords never reach it.
type Entry struct {
	At        string `json:"at"`
	Client    string `json:"client,omitempty"`
	Email     string `json:"email,omitempty"`
	Action    string `json:"action"`
	Path      string `json:"path,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	RemoteIP  string `json:"remote_ip,omitempty"`
}

type Logger struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewLogger appends to path. An empty path disables auditing.
func NewLogger(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

func (l *Logger) Record(e Entry) error {
	if l == nil || l.path == "" {
		return nil
	}
	if e.Action == "" {
		return fmt.Errorf("audit entry requires an action")
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	e.At = l.now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}
