package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"scholarmind/portal/internal/kv"
)

const (
	SessionKey = "sm_auth_user"
	UsersKey   = "sm_auth_users"

	// EventName names the in-process change notification.
	EventName = "sm-auth-change"

	InvalidCredentialsMessage = "Invalid credentials"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrClosed             = errors.New("session store is not open")
)

var defaultUsers = []UserRecord{
	{Email: "axel@axel.fr", Password: "123", Username: "Axel"},
	{Email: "vincent@vincent.fr", Password: "123", Username: "Vincent"},
}

// SealSeeds returns the seed roster with passwords sealed by scheme.
func SealSeeds(scheme PasswordScheme) ([]UserRecord, error) {
	out := make([]UserRecord, 0, len(defaultUsers))
	for _, u := range defaultUsers {
		sealed, err := scheme.Seal(u.Password)
		if err != nil {
			return nil, fmt.Errorf("seal seed %s: %w", u.Email, err)
		}
		u.Password = sealed
		out = append(out, u)
	}
	return out, nil
}

type Options struct {
	Scheme PasswordScheme
	Logger *slog.Logger
	// Seeds overrides the sealed seed roster; nil seals the defaults.
	Seeds []UserRecord
	// RosterLock serializes roster read-modify-write across stores sharing
	// one roster.
	RosterLock sync.Locker
}

type storeState int

const (
	stateNew storeState = iota
	stateOpen
	stateClosed
)

type subscription struct {
	fn          func(Change)
	cancelWatch func()
}

type Store struct {
	users   kv.Storage
	session kv.Storage
	scheme  PasswordScheme
	log     *slog.Logger
	seeds   []UserRecord
	roster  sync.Locker

	mu    sync.Mutex
	state storeState
	next  uint64
	subs  map[uint64]subscription
}

// NewStore builds a store over users (roster) and session storage. A nil
// session storage means both records live in users.
func NewStore(users, session kv.Storage, opts Options) (*Store, error) {
	if users == nil {
		return nil, fmt.Errorf("user storage is required")
	}
	if session == nil {
		session = users
	}
	if opts.Scheme == nil {
		opts.Scheme = PlainScheme{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RosterLock == nil {
		opts.RosterLock = &sync.Mutex{}
	}
	seeds := opts.Seeds
	if seeds == nil {
		var err error
		seeds, err = SealSeeds(opts.Scheme)
		if err != nil {
			return nil, err
		}
	}

	return &Store{
		users:   users,
		session: session,
		scheme:  opts.Scheme,
		log:     opts.Logger,
		seeds:   seeds,
		roster:  opts.RosterLock,
		subs:    make(map[uint64]subscription),
	}, nil
}

// Init opens the store for mutation and subscription.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrClosed
	}

	if raw, ok, err := s.users.Get(UsersKey); err != nil {
		s.log.Warn("roster unreadable, using seed accounts", "err", err)
	} else if ok {
		if _, valid := decodeRoster(raw); !valid {
			s.log.Warn("roster malformed, using seed accounts", "key", UsersKey)
		}
	}
	s.state = stateOpen
	return nil
}

// Dispose cancels every subscription. The store cannot be reopened.
func (s *Store) Dispose() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[uint64]subscription)
	s.state = stateClosed
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancelWatch()
	}
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return ErrClosed
	}
	return nil
}

// ListUsers never fails: absent or malformed roster data yields the seeds.
func (s *Store) ListUsers() []UserRecord {
	raw, ok, err := s.users.Get(UsersKey)
	if err != nil || !ok {
		return s.seedCopy()
	}
	users, valid := decodeRoster(raw)
	if !valid {
		return s.seedCopy()
	}
	return users
}

func (s *Store) ListUserViews() []UserView {
	users := s.ListUsers()
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, UserView{Email: u.Email, Username: u.Username})
	}
	return out
}

func (s *Store) seedCopy() []UserRecord {
	return append([]UserRecord(nil), s.seeds...)
}

func decodeRoster(raw string) ([]UserRecord, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, false
	}
	var users []UserRecord
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, false
	}
	return users, true
}

// RegisterUser appends a record to the roster. Duplicate emails are accepted;
// Login resolves to the first matching record.
func (s *Store) RegisterUser(email, password, username string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	sealed, err := s.scheme.Seal(password)
	if err != nil {
		return err
	}

	s.roster.Lock()
	defer s.roster.Unlock()

	users := s.ListUsers()
	for _, u := range users {
		if u.Email == email {
			s.log.Warn("registering duplicate email", "email", email)
			break
		}
	}
	users = append(users, UserRecord{Email: email, Password: sealed, Username: username})

	b, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	if err := s.users.Set(UsersKey, string(b)); err != nil {
		return fmt.Errorf("persist roster: %w", err)
	}
	s.log.Info("user registered", "email", email)
	return nil
}

func (s *Store) Login(email, password string) (SessionUser, error) {
	if err := s.checkOpen(); err != nil {
		return SessionUser{}, err
	}

	for _, u := range s.ListUsers() {
		if u.Email != email || !s.scheme.Verify(password, u.Password) {
			continue
		}
		user := u.Session()
		b, err := json.Marshal(user)
		if err != nil {
			return SessionUser{}, fmt.Errorf("encode session: %w", err)
		}
		if err := s.session.Set(SessionKey, string(b)); err != nil {
			return SessionUser{}, fmt.Errorf("persist session: %w", err)
		}
		s.publish(&user)
		return user, nil
	}
	return SessionUser{}, ErrInvalidCredentials
}

func (s *Store) CurrentSession() (SessionUser, bool) {
	raw, ok, err := s.session.Get(SessionKey)
	if err != nil || !ok {
		return SessionUser{}, false
	}
	return decodeSession(raw)
}

func decodeSession(raw string) (SessionUser, bool) {
	var u SessionUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return SessionUser{}, false
	}
	if u.Email == "" {
		return SessionUser{}, false
	}
	return u, true
}

func (s *Store) Logout() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.session.Delete(SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.publish(nil)
	return nil
}

// Subscribe registers fn for same-tab changes (login and logout through this
// store) and for session writes made through other handles of the medium.
func (s *Store) Subscribe(fn func(Change)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return func() {}, ErrClosed
	}

	cancelWatch := s.session.Watch(func(c kv.Change) {
		if c.Key != SessionKey {
			return
		}
		ev := Change{Origin: OtherTab}
		if !c.Deleted {
			if u, ok := decodeSession(c.Value); ok {
				ev.User = &u
			}
		}
		fn(ev)
	})

	id := s.next
	s.next++
	s.subs[id] = subscription{fn: fn, cancelWatch: cancelWatch}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			cancelWatch()
		})
	}, nil
}

func (s *Store) publish(user *SessionUser) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, sub := range s.subs {
		fns = append(fns, sub.fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		ev := Change{Origin: SameTab}
		if user != nil {
			u := *user
			ev.User = &u
		}
		fn(ev)
	}
}
