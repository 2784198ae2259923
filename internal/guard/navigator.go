package guard

import (
	"errors"
	"sync"

	"scholarmind/portal/internal/auth"
)

var ErrRedirected = errors.New("navigation redirected to login")

type SessionSource interface {
	CurrentSession() (auth.SessionUser, bool)
}

type ChangeSource interface {
	Subscribe(fn func(auth.Change)) (func(), error)
}

// Loader renders the destination of a navigation. A returned error is a
// failed navigation.
type Loader func(target string) error

type Decision struct {
	Target   string
	Redirect string
	// Skipped is set when a previous evaluation was still settling.
	Skipped bool
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// Navigator is the guard of a single tab. Each navigation moves it from Idle
// to Guarding; Complete and Fail both move it back.
type Navigator struct {
	rules    Rules
	sessions SessionSource

	// OnRedirect, when set, observes every redirect the navigator issues.
	OnRedirect func(from, to string)

	mu       sync.Mutex
	guarding bool
	current  string
}

func NewNavigator(rules Rules, sessions SessionSource) *Navigator {
	return &Navigator{rules: rules, sessions: sessions}
}

func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Navigator) Guarding() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.guarding
}

func (n *Navigator) evaluate(target string) Decision {
	if n.rules.Protected(target) {
		if _, ok := n.sessions.CurrentSession(); !ok {
			return Decision{Target: target, Redirect: n.rules.LoginURL(target)}
		}
	}
	return Decision{Target: target}
}

// Mount evaluates the page a tab opens on.
func (n *Navigator) Mount(target string) Decision {
	d := n.evaluate(target)
	landed := target
	if !d.Allowed() {
		landed = d.Redirect
	}
	n.mu.Lock()
	n.current = landed
	n.mu.Unlock()

	if !d.Allowed() {
		n.notify(target, d.Redirect)
	}
	return d
}

// Begin handles a navigation-start event.
func (n *Navigator) Begin(target string) Decision {
	n.mu.Lock()
	if n.guarding {
		n.mu.Unlock()
		return Decision{Target: target, Skipped: true}
	}
	n.guarding = true
	n.mu.Unlock()

	return n.evaluate(target)
}

func (n *Navigator) Complete(target string) {
	n.mu.Lock()
	n.guarding = false
	n.current = target
	n.mu.Unlock()
}

// Fail clears the guard after a failed or aborted navigation.
func (n *Navigator) Fail(string, error) {
	n.mu.Lock()
	n.guarding = false
	n.mu.Unlock()
}

// Go runs a full navigation and returns where the tab landed. A navigation
// started while another is guarding is loaded unchecked and leaves the flag
// to its owner.
func (n *Navigator) Go(target string, load Loader) (string, error) {
	d := n.Begin(target)
	if d.Skipped {
		if load != nil {
			if err := load(target); err != nil {
				return n.Current(), err
			}
		}
		n.mu.Lock()
		n.current = target
		n.mu.Unlock()
		return target, nil
	}
	if !d.Allowed() {
		n.Fail(target, ErrRedirected)
		n.notify(target, d.Redirect)
		return n.Go(d.Redirect, load)
	}

	if load != nil {
		if err := load(target); err != nil {
			n.Fail(target, err)
			return n.Current(), err
		}
	}
	n.Complete(target)
	return target, nil
}

// Watch re-evaluates the current page on every session change, sending a
// tab that lost its session to the login page.
func (n *Navigator) Watch(src ChangeSource, load Loader) (func(), error) {
	return src.Subscribe(func(auth.Change) {
		if n.Guarding() {
			return
		}
		current := n.Current()
		if current == "" {
			return
		}
		if d := n.evaluate(current); !d.Allowed() {
			_, _ = n.Go(current, load)
		}
	})
}

func (n *Navigator) notify(from, to string) {
	if n.OnRedirect != nil {
		n.OnRedirect(from, to)
	}
}
