package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/config"
)

func newLoginCmd() *cobra.Command {
	var emailFlag string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the backend and store the token",
		Long:  "Prompts for your account credentials, exchanges them for a bearer token, and saves it to the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(emailFlag)
		},
	}
	cmd.Flags().StringVarP(&emailFlag, "email", "e", "", "account email (prompted when omitted)")
	return cmd
}

func runLogin(email string) error {
	cfg := initConfig()
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("Logging in to %s\n\n", cfg.Server)

	if email == "" {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	fmt.Print("Password: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimSpace(string(secret))
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	// Login itself is unauthenticated, so the client carries no token.
	client := api.NewClient(cfg.Server, func() string { return "" })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := client.Login(ctx, email, password)
	if err != nil {
		if api.IsStatus(err, 401) {
			return fmt.Errorf("invalid email or password")
		}
		return fmt.Errorf("login: %w", err)
	}

	if err := config.SaveCredentials(cfgFile, cfg.Server, resp.User.Email, resp.Token); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	name := resp.User.Name
	if name == "" {
		name = resp.User.Email
	}
	fmt.Printf("\nLogged in as %s\n", name)
	fmt.Println("You can now run: ragdesk")
	return nil
}
