package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents for indexing",
		Long:  "Uploads one or more files to the backend, where they are parsed, chunked, and indexed for retrieval.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(args)
		},
	}
}

func runUpload(paths []string) error {
	client, err := buildClient(initConfig())
	if err != nil {
		return err
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		doc, err := client.UploadDocument(ctx, path, f)
		cancel()
		f.Close()
		if err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
		fmt.Printf("uploaded %s (id %d, status %s)\n", doc.Title, doc.ID, doc.Status)
	}
	return nil
}
