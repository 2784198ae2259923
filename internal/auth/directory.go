package auth

import (
	"fmt"
	"strings"
	"sync"

	"scholarmind/portal/internal/kv"
)

// clientFeed is the store a client keeps while something watches its
// session changes.
type clientFeed struct {
	store *Store
	refs  int
}

// Directory hands out the session store of each client. Clients share the
// roster; each keeps its current session under its own key namespace.
//
// Stores are built per call and dropped with the request, except while a
// client holds a change feed through Watch: until the last watcher cancels,
// ForClient returns the watched store so the watcher sees that client's
// logins and logouts as its own.
type Directory struct {
	backend kv.Backend
	users   kv.Storage
	opts    Options

	mu     sync.Mutex
	feeds  map[string]*clientFeed
	closed bool
}

func NewDirectory(backend kv.Backend, opts Options) (*Directory, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if opts.Scheme == nil {
		opts.Scheme = PlainScheme{}
	}
	if opts.RosterLock == nil {
		opts.RosterLock = &sync.Mutex{}
	}
	if opts.Seeds == nil {
		seeds, err := SealSeeds(opts.Scheme)
		if err != nil {
			return nil, err
		}
		opts.Seeds = seeds
	}

	return &Directory{
		backend: backend,
		users:   kv.NewShared(backend).Open(),
		opts:    opts,
		feeds:   make(map[string]*clientFeed),
	}, nil
}

func validClientID(clientID string) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || strings.Contains(clientID, "/") {
		return "", fmt.Errorf("invalid client id %q", clientID)
	}
	return clientID, nil
}

func (d *Directory) sessionBackend(clientID string) kv.Backend {
	return kv.WithPrefix(d.backend, "client/"+clientID+"/")
}

func (d *Directory) ForClient(clientID string) (*Store, error) {
	id, err := validClientID(clientID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if f, ok := d.feeds[id]; ok {
		d.mu.Unlock()
		return f.store, nil
	}
	d.mu.Unlock()
	return d.openStore(id)
}

func (d *Directory) openStore(clientID string) (*Store, error) {
	session := kv.NewShared(d.sessionBackend(clientID)).Open()
	s, err := NewStore(d.users, session, d.opts)
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

// CurrentSession reads the session of clientID without opening a store.
func (d *Directory) CurrentSession(clientID string) (SessionUser, bool) {
	id, err := validClientID(clientID)
	if err != nil {
		return SessionUser{}, false
	}
	raw, ok, err := d.sessionBackend(id).Get(SessionKey)
	if err != nil || !ok {
		return SessionUser{}, false
	}
	return decodeSession(raw)
}

// Watch subscribes fn to the session changes of clientID. The client's store
// is retained until the returned cancel has run for every watcher.
func (d *Directory) Watch(clientID string, fn func(Change)) (func(), error) {
	id, err := validClientID(clientID)
	if err != nil {
		return func() {}, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return func() {}, ErrClosed
	}
	f, ok := d.feeds[id]
	if !ok {
		s, err := d.openStore(id)
		if err != nil {
			d.mu.Unlock()
			return func() {}, err
		}
		f = &clientFeed{store: s}
		d.feeds[id] = f
	}
	f.refs++
	d.mu.Unlock()

	cancel, err := f.store.Subscribe(fn)
	if err != nil {
		d.release(id, f)
		return func() {}, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			d.release(id, f)
		})
	}, nil
}

// release drops the feed once its last watcher is gone. The store itself is
// left open: a request may still hold it.
func (d *Directory) release(clientID string, f *clientFeed) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f.refs--
	if f.refs <= 0 && d.feeds[clientID] == f {
		delete(d.feeds, clientID)
	}
}

// Live reports how many clients currently hold a change feed.
func (d *Directory) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.feeds)
}

// Roster lists the shared roster without passwords.
func (d *Directory) Roster() []UserView {
	s, err := NewStore(d.users, nil, d.opts)
	if err != nil {
		return nil
	}
	return s.ListUserViews()
}

func (d *Directory) Close() {
	d.mu.Lock()
	feeds := d.feeds
	d.feeds = make(map[string]*clientFeed)
	d.closed = true
	d.mu.Unlock()

	for _, f := range feeds {
		f.store.Dispose()
	}
}
