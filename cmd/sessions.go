package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsRm(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a chat session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsRename(args[0], args[1])
		},
	})
	return cmd
}

func runSessionsList() error {
	client, err := buildClient(initConfig())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no chats yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED\tLAST MESSAGE")
	for _, s := range sessions {
		last := s.LastMessage
		if len(last) > 50 {
			last = last[:50] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Title, s.UpdatedAt.Local().Format("2006-01-02 15:04"), last)
	}
	return w.Flush()
}

func runSessionsRm(arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", arg)
	}
	client, err := buildClient(initConfig())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session %d: %w", id, err)
	}
	fmt.Printf("deleted session %d\n", id)
	return nil
}

func runSessionsRename(arg, title string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", arg)
	}
	client, err := buildClient(initConfig())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.RenameSession(ctx, id, title); err != nil {
		return fmt.Errorf("rename session %d: %w", id, err)
	}
	fmt.Printf("renamed session %d to %q\n", id, title)
	return nil
}
