package kv

import (
	"database/sql"
	"errors"
	"fmt"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := p.db.Exec(q); err != nil {
		return fmt.Errorf("ensure kv_entries schema: %w", err)
	}
	return nil
}

func (p *Postgres) Get(key string) (string, bool, error) {
	var v string
	const q = `SELECT value FROM kv_entries WHERE key = $1`
	if err := p.db.QueryRow(q, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query kv entry: %w", err)
	}
	return v, true, nil
}

func (p *Postgres) Set(key, value string) error {
	const q = `
INSERT INTO kv_entries (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
	updated_at = NOW()`
	if _, err := p.db.Exec(q, key, value); err != nil {
		return fmt.Errorf("upsert kv entry: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(key string) error {
	if _, err := p.db.Exec(`DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete kv entry: %w", err)
	}
	return nil
}
