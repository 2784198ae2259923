package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"scholarmind/portal/internal/kv"
)

const pingInterval = 2 * time.Second

func main() {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "TEST_POSTGRES_DSN or DATABASE_URL is required")
		os.Exit(2)
	}

	timeout := 60 * time.Second
	if raw := os.Getenv("WAIT_FOR_POSTGRES_TIMEOUT_SEC"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			fmt.Fprintf(os.Stderr, "invalid WAIT_FOR_POSTGRES_TIMEOUT_SEC: %q\n", raw)
			os.Exit(2)
		}
		timeout = time.Duration(secs) * time.Second
	}
	ensureSchema, _ := strconv.ParseBool(os.Getenv("WAIT_FOR_POSTGRES_ENSURE_SCHEMA"))

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open postgres: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := waitReady(db, timeout, pingInterval); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("postgres ready")

	if ensureSchema {
		if _, err := kv.NewPostgres(db); err != nil {
			fmt.Fprintf(os.Stderr, "prepare session storage: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("session storage schema ready")
	}
}

// waitReady pings db until it answers or timeout elapses.
func waitReady(db *sql.DB, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("postgres not ready within %s: %w", timeout, err)
		}
		time.Sleep(interval)
	}
}
