package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/config"
)

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change retrieval preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefsShow()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a preference (top_k, mmr_lambda, temperature, show_images, compact_layout)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefsSet(args[0], args[1])
		},
	})
	return cmd
}

func runPrefsShow() error {
	p := config.NewPrefsStore("").Get()
	fmt.Printf("top_k           %d\n", p.TopK)
	fmt.Printf("mmr_lambda      %g\n", p.MMRLambda)
	fmt.Printf("temperature     %g\n", p.Temperature)
	fmt.Printf("show_images     %t\n", p.ShowImages)
	fmt.Printf("compact_layout  %t\n", p.CompactLayout)
	return nil
}

func runPrefsSet(key, value string) error {
	apply, err := parsePrefSetting(key, value)
	if err != nil {
		return err
	}

	prefs := config.NewPrefsStore("")
	if err := prefs.Update(apply); err != nil {
		return err
	}

	pushPrefs(prefs.Get())
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

// parsePrefSetting validates a key/value pair and returns the mutation
// to apply to the preferences blob.
func parsePrefSetting(key, value string) (func(*config.Prefs), error) {
	switch key {
	case "top_k":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("top_k must be a positive integer, got %q", value)
		}
		return func(p *config.Prefs) { p.TopK = n }, nil
	case "mmr_lambda":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("mmr_lambda must be in [0,1], got %q", value)
		}
		return func(p *config.Prefs) { p.MMRLambda = f }, nil
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("temperature must be >= 0, got %q", value)
		}
		return func(p *config.Prefs) { p.Temperature = f }, nil
	case "show_images":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("show_images must be true or false, got %q", value)
		}
		return func(p *config.Prefs) { p.ShowImages = b }, nil
	case "compact_layout":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("compact_layout must be true or false, got %q", value)
		}
		return func(p *config.Prefs) { p.CompactLayout = b }, nil
	default:
		return nil, fmt.Errorf("unknown preference %q", key)
	}
}

// pushPrefs mirrors the tuning values to the server-side copy, best effort.
// Display preferences are client-only and not pushed.
func pushPrefs(p config.Prefs) {
	cfg := initConfig()
	if cfg.Token == "" {
		return
	}
	client, err := buildClient(cfg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Read-modify-write so server-only fields (theme) survive the patch.
	remote, err := client.Prefs(ctx)
	if err != nil {
		remote = api.RemotePrefs{}
	}
	remote.TopK = p.TopK
	remote.MMRLambda = p.MMRLambda
	remote.Temperature = p.Temperature
	_ = client.UpdatePrefs(ctx, remote)
}
