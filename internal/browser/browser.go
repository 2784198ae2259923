// Package browser simulates browser tabs sharing one storage medium, each
// with its own session store and route guard.
package browser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/guard"
	"scholarmind/portal/internal/kv"
	"scholarmind/portal/internal/library"
)

// ErrExit is returned by Exec when the user asks to leave.
var ErrExit = errors.New("exit requested")

type Options struct {
	Rules     guard.Rules
	Catalogue *library.Catalogue
	Auth      auth.Options
	Out       io.Writer
}

type Tab struct {
	ID    int
	store *auth.Store
	nav   *guard.Navigator
	stop  func()
}

func (t *Tab) Current() string {
	return t.nav.Current()
}

type Browser struct {
	shared    *kv.Shared
	rules     guard.Rules
	catalogue *library.Catalogue
	authOpts  auth.Options
	out       io.Writer

	mu     sync.Mutex
	tabs   []*Tab
	active int
}

func New(backend kv.Backend, opts Options) (*Browser, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if opts.Rules.LoginPath() == "" {
		opts.Rules = guard.DefaultRules()
	}
	if opts.Catalogue == nil {
		opts.Catalogue = library.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Auth.Scheme == nil {
		opts.Auth.Scheme = auth.PlainScheme{}
	}
	if opts.Auth.RosterLock == nil {
		opts.Auth.RosterLock = &sync.Mutex{}
	}
	if opts.Auth.Seeds == nil {
		seeds, err := auth.SealSeeds(opts.Auth.Scheme)
		if err != nil {
			return nil, err
		}
		opts.Auth.Seeds = seeds
	}

	return &Browser{
		shared:    kv.NewShared(backend),
		rules:     opts.Rules,
		catalogue: opts.Catalogue,
		authOpts:  opts.Auth,
		out:       opts.Out,
	}, nil
}

// OpenTab mounts a new tab on target and makes it the active one.
func (b *Browser) OpenTab(target string) (*Tab, error) {
	if target == "" {
		target = "/"
	}
	store, err := auth.NewStore(b.shared.Open(), nil, b.authOpts)
	if err != nil {
		return nil, err
	}
	if err := store.Init(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	tab := &Tab{ID: len(b.tabs) + 1, store: store}
	b.tabs = append(b.tabs, tab)
	b.active = len(b.tabs) - 1
	b.mu.Unlock()

	tab.nav = guard.NewNavigator(b.rules, store)
	tab.nav.OnRedirect = func(from, to string) {
		fmt.Fprintf(b.out, "[tab %d] %s requires login, redirected to %s\n", tab.ID, from, to)
	}
	stop, err := tab.nav.Watch(store, b.loader(tab))
	if err != nil {
		store.Dispose()
		return nil, err
	}
	tab.stop = stop

	tab.nav.Mount(target)
	if err := b.render(tab, tab.nav.Current()); err != nil {
		return tab, err
	}
	return tab, nil
}

func (b *Browser) Active() *Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tabs) == 0 {
		return nil
	}
	return b.tabs[b.active]
}

func (b *Browser) Tabs() []*Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Tab(nil), b.tabs...)
}

func (b *Browser) Switch(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 1 || id > len(b.tabs) {
		return fmt.Errorf("no tab %d", id)
	}
	b.active = id - 1
	return nil
}

func (b *Browser) Prompt() string {
	t := b.Active()
	if t == nil {
		return "> "
	}
	return fmt.Sprintf("tab%d:%s> ", t.ID, t.Current())
}

// Close disposes every tab's store.
func (b *Browser) Close() {
	for _, t := range b.Tabs() {
		if t.stop != nil {
			t.stop()
		}
		t.store.Dispose()
	}
}

func (b *Browser) loader(tab *Tab) guard.Loader {
	return func(target string) error {
		return b.render(tab, target)
	}
}

// Exec runs one parsed command line against the active tab.
func (b *Browser) Exec(args []string) error {
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "help":
		fmt.Fprint(b.out, helpText)
		return nil
	case "exit", "quit":
		return ErrExit
	case "tabs":
		b.listTabs()
		return nil
	case "tab":
		return b.handleTab(args[1:])
	case "users":
		return b.handleUsers()
	}

	tab := b.Active()
	if tab == nil {
		return fmt.Errorf("no open tab")
	}
	switch args[0] {
	case "go":
		if len(args) != 2 {
			return fmt.Errorf("usage: go <path>")
		}
		_, err := tab.nav.Go(args[1], b.loader(tab))
		return err
	case "login":
		return b.handleLogin(tab, args[1:])
	case "logout":
		return tab.store.Logout()
	case "register":
		if len(args) != 4 {
			return fmt.Errorf("usage: register <email> <password> <username>")
		}
		if err := tab.store.RegisterUser(args[1], args[2], args[3]); err != nil {
			return err
		}
		fmt.Fprintf(b.out, "registered %s\n", args[1])
		return nil
	case "whoami":
		if u, ok := tab.store.CurrentSession(); ok {
			fmt.Fprintf(b.out, "%s <%s>\n", u.Username, u.Email)
		} else {
			fmt.Fprintln(b.out, "not logged in")
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (b *Browser) handleTab(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tab new [path] | tab <n>")
	}
	if args[0] == "new" {
		target := "/"
		if len(args) > 1 {
			target = args[1]
		}
		_, err := b.OpenTab(target)
		return err
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid tab number %q", args[0])
	}
	return b.Switch(id)
}

func (b *Browser) listTabs() {
	active := b.Active()
	for _, t := range b.Tabs() {
		marker := " "
		if t == active {
			marker = "*"
		}
		fmt.Fprintf(b.out, "%s %d %s\n", marker, t.ID, t.Current())
	}
}

func (b *Browser) handleUsers() error {
	tab := b.Active()
	if tab == nil {
		return fmt.Errorf("no open tab")
	}
	for _, u := range tab.store.ListUserViews() {
		fmt.Fprintf(b.out, "%s <%s>\n", u.Username, u.Email)
	}
	return nil
}

// handleLogin behaves like the login page: on success the tab continues to
// the page it was sent away from.
func (b *Browser) handleLogin(tab *Tab, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: login <email> <password>")
	}
	u, err := tab.store.Login(args[0], args[1])
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			fmt.Fprintln(b.out, auth.InvalidCredentialsMessage)
			return nil
		}
		return err
	}
	fmt.Fprintf(b.out, "welcome %s\n", u.Username)

	from := ""
	if cur, err := url.Parse(tab.Current()); err == nil && cur.Path == b.rules.LoginPath() {
		from = cur.Query().Get("from")
	}
	_, err = tab.nav.Go(guard.SafeReturn(from, "/libraries"), b.loader(tab))
	return err
}

// RunScript executes one command per line from r, echoing each behind the
// prompt. Blank lines and lines starting with # are skipped. Command errors
// are printed and do not stop the script; exit does.
func (b *Browser) RunScript(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintf(b.out, "%s%s\n", b.Prompt(), line)
		err := b.Exec(ParseArgs(line))
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(b.out, "Error:", err)
		}
	}
	return sc.Err()
}

// ParseArgs splits a command line on spaces, keeping double-quoted runs
// together.
func ParseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for _, r := range input {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

const helpText = `Commands:
  tabs                                 list open tabs
  tab new [path]                       open a tab on path
  tab <n>                              switch to tab n
  users                                list registered users
  register <email> <password> <name>   add a user
  login <email> <password>             log in the active tab
  logout                               log out
  whoami                               show the session user
  go <path>                            navigate the active tab
  exit                                 leave
`
