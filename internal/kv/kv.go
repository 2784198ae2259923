// Package kv provides the durable key-value medium the session store keeps
// its roster and current-session records in.
//
// A Backend is the raw medium (memory, JSON file, SQLite, Postgres). A Shared
// wraps one backend with a change feed and hands out Handles, one per tab.
// Writes made through a handle are reported to every other handle watching
// the same Shared, never to the writer itself.
package kv

import "errors"

var ErrEmptyKey = errors.New("kv: empty key")

type Backend interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Storage is what a single tab sees of the medium.
type Storage interface {
	Backend
	Watch(fn func(Change)) (cancel func())
}

type Change struct {
	Key     string
	Value   string
	Deleted bool
	// Origin is the ID of the handle that performed the write.
	Origin string
}
