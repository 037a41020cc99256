package main

import (
	"github.com/spf13/cobra"

	"ai-agent/internal/app"
	"ai-agent/internal/config"
	"ai-agent/internal/logger"
)

var ingestTags []string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load documents into the vector store",
	Long: `Extract, chunk and embed each file, then store it for vector retrieval.

Plain text, Markdown and PDF files are supported. Requires DB_URL and an
embedding provider.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestTags, "tags", "t", nil, "tags attached to every ingested document")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.ServiceName, cfg.Environment)

	pipeline, closeDeps, err := app.BuildIngest(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDeps() //nolint:errcheck

	for _, path := range args {
		report, err := pipeline.IngestFile(ctx, path, ingestTags)
		if err != nil {
			return err
		}
		cmd.Printf("%s: %d chunks (document %s)\n", report.Source, report.Chunks, report.DocumentID)
	}
	return nil
}
