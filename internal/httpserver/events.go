package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"scholarmind/portal/internal/auth"
)

type changeEvent struct {
	User   *auth.SessionUser `json:"user"`
	Origin string            `json:"origin"`
}

// events streams the client's login and logout changes as server-sent
// events named after auth.EventName.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	if h.deps.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}

	changes := make(chan auth.Change, 16)
	cancel, err := h.deps.Clients.Watch(clientIDFrom(r.Context()), func(c auth.Change) {
		select {
		case changes <- c:
		default:
			// Slow reader; the next event carries the current state.
		}
	})
	if err != nil {
		if !errors.Is(err, auth.ErrClosed) {
			h.log.Error("watch client session failed", "error", err)
		}
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": ready\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.streamsDone:
			return
		case c := <-changes:
			b, err := json.Marshal(changeEvent{User: c.User, Origin: c.Origin.String()})
			if err != nil {
				h.log.Error("encode change event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", auth.EventName, b); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
