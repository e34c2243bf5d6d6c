package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/chat"
	"github.com/ragdesk-ai/ragdesk/internal/config"
)

// PlainREPL is the line-oriented fallback used when stdout is not a
// terminal or --plain is set. It drives the same chat.Store as the full
// TUI, one question per line, answers printed as plain text.
type PlainREPL struct {
	store   *chat.Store
	prefs   *config.PrefsStore
	scanner *bufio.Scanner
	out     io.Writer
	width   int
}

// NewPlainREPL creates a REPL reading from stdin and writing to stdout.
func NewPlainREPL(store *chat.Store, prefs *config.PrefsStore) *PlainREPL {
	s := bufio.NewScanner(os.Stdin)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainREPL{
		store:   store,
		prefs:   prefs,
		scanner: s,
		out:     os.Stdout,
		width:   100,
	}
}

// Run blocks until EOF or /quit. SIGINT cancels an in-flight question
// instead of killing the process.
func (p *PlainREPL) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigCh:
				p.store.StopGeneration()
			case <-done:
				return
			}
		}
	}()

	p.store.LoadSessions(ctx)
	if active, ok := p.store.Active(); ok {
		fmt.Fprintf(p.out, "%s\n", active.Title)
	}

	for {
		fmt.Fprint(p.out, "\n> ")
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return err
			}
			return nil
		}
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := p.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}
		p.ask(ctx, line)
	}
}

func (p *PlainREPL) ask(ctx context.Context, question string) {
	before := len(p.store.Messages())
	if err := p.store.SendMessage(ctx, question); err != nil {
		msg := p.store.SendError()
		if msg == "" {
			msg = err.Error()
		}
		fmt.Fprintf(p.out, "error: %s\n", msg)
		p.store.ClearSendError()
		return
	}
	msgs := p.store.Messages()
	for _, m := range msgs[before:] {
		if m.Role != chat.RoleAssistant {
			continue
		}
		p.printAnswer(m)
	}
}

func (p *PlainREPL) printAnswer(m chat.Message) {
	fmt.Fprintln(p.out)
	for _, line := range wrapByDisplayWidth(m.Text, p.width) {
		fmt.Fprintln(p.out, line)
	}
	prefs := p.prefs.Get()
	for i, c := range m.Citations {
		fmt.Fprintf(p.out, "  [%d] %s p.%d · %s\n", i+1, c.Filename, c.Page, c.CollectionName)
		if !prefs.CompactLayout && c.Snippet != "" {
			fmt.Fprintf(p.out, "      %s\n", truncate(c.Snippet, 100))
		}
	}
	for _, f := range m.Followups {
		fmt.Fprintf(p.out, "  ↳ %s\n", f)
	}
}

// handleCommand runs a slash command and reports whether the REPL
// should exit.
func (p *PlainREPL) handleCommand(ctx context.Context, line string) bool {
	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	var err error
	switch cmd {
	case "/quit", "/exit":
		p.store.StopGeneration()
		return true
	case "/help":
		for _, it := range BuiltinSlashCommands() {
			fmt.Fprintf(p.out, "  %-12s %s\n", it.Name, it.Desc)
		}
		return false
	case "/new":
		err = p.store.CreateSession(ctx)
	case "/sessions":
		for _, sess := range p.store.Sessions() {
			marker := " "
			if active, ok := p.store.Active(); ok && active.ID == sess.ID {
				marker = "*"
			}
			fmt.Fprintf(p.out, "%s %d  %s\n", marker, sess.ID, sess.Title)
		}
		return false
	case "/rename":
		if active, ok := p.store.Active(); ok {
			err = p.store.RenameSession(ctx, active.ID, args)
		} else {
			err = chat.ErrNoSession
		}
	case "/delete":
		if active, ok := p.store.Active(); ok {
			err = p.store.DeleteSession(ctx, active.ID)
		} else {
			err = chat.ErrNoSession
		}
	case "/regen":
		before := len(p.store.Messages())
		if err = p.store.Regenerate(ctx); err == nil {
			msgs := p.store.Messages()
			for _, m := range msgs[before:] {
				if m.Role == chat.RoleAssistant {
					p.printAnswer(m)
				}
			}
		} else if msg := p.store.SendError(); msg != "" {
			fmt.Fprintf(p.out, "error: %s\n", msg)
			p.store.ClearSendError()
			return false
		}
	case "/up", "/down":
		marker := api.FeedbackUp
		if cmd == "/down" {
			marker = api.FeedbackDown
		}
		if target, ok := lastAssistantMessage(p.store.Messages()); ok {
			err = p.store.SubmitFeedback(ctx, target.ID, marker)
		} else {
			err = chat.ErrNoFeedbackTarget
		}
	default:
		fmt.Fprintf(p.out, "unknown command %s (try /help)\n", cmd)
		return false
	}

	if err != nil {
		fmt.Fprintf(p.out, "error: %s\n", err)
	}
	return false
}

// truncate shortens s to maxLen characters, appending "..." if cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
