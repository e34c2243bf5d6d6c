package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/chat"
	"github.com/ragdesk-ai/ragdesk/internal/config"
	"github.com/ragdesk-ai/ragdesk/internal/tui"
)

// runChat starts the interactive chat mode.
func runChat() error {
	cfg := initConfig()

	client, err := buildClient(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	prefs := config.NewPrefsStore("")
	seedPrefs(client, prefs)

	// In TUI mode stderr shares the screen with the UI, so logging is off
	// there. Plain mode logs to stderr when --verbose is set.
	logger := slog.New(slog.DiscardHandler)
	if plainMode && verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	store := chat.NewStore(client, prefs, logger)

	if plainMode {
		repl := tui.NewPlainREPL(store, prefs)
		return repl.Run(context.Background())
	}

	return tui.Run(store, prefs, tui.TUIConfig{
		Version: displayVersion(),
		Server:  cfg.Server,
		Email:   cfg.Email,
	})
}

// seedPrefs initializes the local preferences file from the server-side
// copy the first time the client runs. Failures are non-fatal; local
// defaults apply instead.
func seedPrefs(client *api.Client, prefs *config.PrefsStore) {
	if prefs.Exists() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	remote, err := client.Prefs(ctx)
	if err != nil {
		return
	}
	_ = prefs.Update(func(p *config.Prefs) {
		if remote.TopK > 0 {
			p.TopK = remote.TopK
		}
		if remote.MMRLambda > 0 {
			p.MMRLambda = remote.MMRLambda
		}
		if remote.Temperature > 0 {
			p.Temperature = remote.Temperature
		}
	})
}
