// Package guard decides which paths need a logged-in session and redirects
// navigation that lacks one to the login page.
package guard

import (
	"net/url"
	"path"
	"strings"
)

const DefaultLoginPath = "/login"

var DefaultProtected = []string{"/libraries", "/account", "/libraries/*", "/papers/*"}

// Rules is the static protected-path table plus the login path that is
// always exempt from guarding.
type Rules struct {
	patterns  []pattern
	loginPath string
}

type pattern struct {
	base   string
	nested bool
}

func NewRules(loginPath string, patterns []string) Rules {
	if strings.TrimSpace(loginPath) == "" {
		loginPath = DefaultLoginPath
	}
	r := Rules{loginPath: normalize(loginPath)}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if base, ok := strings.CutSuffix(p, "/*"); ok {
			r.patterns = append(r.patterns, pattern{base: normalize(base), nested: true})
			continue
		}
		r.patterns = append(r.patterns, pattern{base: normalize(p)})
	}
	return r
}

func DefaultRules() Rules {
	return NewRules(DefaultLoginPath, DefaultProtected)
}

func (r Rules) LoginPath() string {
	return r.loginPath
}

// Protected reports whether target needs a session. Query and fragment are
// ignored.
func (r Rules) Protected(target string) bool {
	p := normalize(target)
	if p == r.loginPath {
		return false
	}
	for _, pat := range r.patterns {
		if p == pat.base {
			return true
		}
		if pat.nested && (pat.base == "/" || strings.HasPrefix(p, pat.base+"/")) {
			return true
		}
	}
	return false
}

// LoginURL is the redirect target carrying target as the "from" parameter.
func (r Rules) LoginURL(target string) string {
	return r.loginPath + "?from=" + url.QueryEscape(target)
}

func normalize(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return "/"
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return path.Clean(target)
}

// SafeReturn returns from when it is a local path, else fallback. It keeps
// the login page from bouncing users to other hosts.
func SafeReturn(from, fallback string) string {
	from = strings.TrimSpace(from)
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return fallback
	}
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return from
}
