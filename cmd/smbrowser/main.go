package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"scholarmind/portal/internal/app"
	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/browser"
	"scholarmind/portal/internal/config"
	"scholarmind/portal/internal/guard"
	"scholarmind/portal/internal/kv"
	"scholarmind/portal/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := observability.NewLogger(cfg.Log.Level, "text")

	backend, closer, err := app.OpenBackend(cfg.Storage)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	scheme, err := auth.SchemeByName(cfg.Auth.PasswordScheme, cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatalf("password scheme: %v", err)
	}

	start := "/"
	if len(os.Args) > 1 {
		start = os.Args[1]
	}
	opts := browser.Options{
		Rules: guard.NewRules(cfg.Guard.LoginPath, cfg.Guard.ProtectedPaths),
		Auth:  auth.Options{Scheme: scheme, Logger: logger},
		Out:   os.Stdout,
	}

	// Piped input runs as a script.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		b := openBrowser(backend, opts, start)
		defer b.Close()
		if err := b.RunScript(os.Stdin); err != nil {
			log.Fatalf("run script: %v", err)
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     os.Getenv("SMBROWSER_HISTORY_FILE"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("init readline: %v", err)
	}
	defer rl.Close()

	opts.Out = rl.Stdout()
	b := openBrowser(backend, opts, start)
	defer b.Close()

	for {
		rl.SetPrompt(b.Prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Println("Use 'exit' to leave.")
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Fatalf("read line: %v", err)
		}

		err = b.Exec(browser.ParseArgs(strings.TrimSpace(line)))
		if errors.Is(err, browser.ErrExit) {
			return
		}
		if err != nil {
			fmt.Fprintln(rl.Stderr(), "Error:", err)
		}
	}
}

func openBrowser(backend kv.Backend, opts browser.Options, start string) *browser.Browser {
	b, err := browser.New(backend, opts)
	if err != nil {
		log.Fatalf("create browser: %v", err)
	}
	if _, err := b.OpenTab(start); err != nil {
		log.Fatalf("open tab: %v", err)
	}
	return b
}
