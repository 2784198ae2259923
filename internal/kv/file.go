package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File keeps every entry in a single JSON object, rewritten on each write.
type File struct {
	path string

	mu      sync.RWMutex
	entries map[string]string
}

func NewFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage state file path is required")
	}

	f := &File{
		path:    path,
		entries: make(map[string]string),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.entries[key]
	f.entries[key] = value
	if err := f.persistLocked(); err != nil {
		if had {
			f.entries[key] = prev
		} else {
			delete(f.entries, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.entries[key]
	if !had {
		return nil
	}
	delete(f.entries, key)
	if err := f.persistLocked(); err != nil {
		f.entries[key] = prev
		return err
	}
	return nil
}

func (f *File) load() error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read storage file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	decoded := make(map[string]string)
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode storage file: %w", err)
	}
	f.entries = decoded
	return nil
}

func (f *File) persistLocked() error {
	b, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("mkdir storage dir: %w", err)
	}
	if err := os.WriteFile(f.path, b, 0o644); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	return nil
}
