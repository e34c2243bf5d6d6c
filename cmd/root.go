package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/config"
)

var (
	cfgFile    string
	serverFlag string
	plainMode  bool
	verbose    bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "ragdesk",
		Short: "Terminal client for your document Q&A server",
		Long:  "ragdesk is an interactive terminal client for a self-hosted document question-answering backend.",
		// Running ragdesk with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Fall back to plain line mode when stdout is not a terminal
			// and --plain was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("plain") && !term.IsTerminal(int(os.Stdout.Fd())) {
				plainMode = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/ragdesk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&plainMode, "plain", false, "line-oriented mode (default: auto-detect terminal)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log request activity to stderr")

	// Subcommands
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newPrefsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// displayVersion returns a formatted version string for the TUI welcome box,
// e.g. "v0.2.0 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if serverFlag != "" {
		cfg.Server = serverFlag
	}
	return cfg
}

// buildClient creates an API client bound to the configured server and
// token. It fails when no token is stored yet.
func buildClient(cfg *config.Config) (*api.Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf(
			"not logged in to %s.\n"+
				"Authenticate via:\n"+
				"  - run: ragdesk login\n"+
				"  - environment: RAGDESK_TOKEN",
			cfg.Server,
		)
	}
	token := cfg.Token
	return api.NewClient(cfg.Server, func() string { return token }), nil
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ragdesk %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}
