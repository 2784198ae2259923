package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type PasswordScheme interface {
	Name() string
	Seal(password string) (string, error)
	Verify(password, stored string) bool
}

// PlainScheme stores passwords as given. It matches the mock roster layout.
type PlainScheme struct{}

func (PlainScheme) Name() string { return "plain" }

func (PlainScheme) Seal(password string) (string, error) {
	return password, nil
}

func (PlainScheme) Verify(password, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}

type BcryptScheme struct {
	Cost int
}

func (BcryptScheme) Name() string { return "bcrypt" }

func (b BcryptScheme) Seal(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (BcryptScheme) Verify(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// SchemeByName resolves the AUTH_PASSWORD_SCHEME setting.
func SchemeByName(name string, bcryptCost int) (PasswordScheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "plain":
		return PlainScheme{}, nil
	case "bcrypt":
		if bcryptCost != 0 && (bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost) {
			return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
		}
		return BcryptScheme{Cost: bcryptCost}, nil
	default:
		return nil, fmt.Errorf("unknown password scheme %q", name)
	}
}
