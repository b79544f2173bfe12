package main

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/diagnostics"
	"github.com/aluiziolira/go-catalog-scraper/fetcher"
	"github.com/aluiziolira/go-catalog-scraper/parser"
	"github.com/aluiziolira/go-catalog-scraper/pipeline"
	"github.com/aluiziolira/go-catalog-scraper/scraper"
	"github.com/aluiziolira/go-catalog-scraper/storage"
	"github.com/spf13/cobra"
)

func newCollectLinksCommand(base config.Config, global *globalOptions) *cobra.Command {
	cfg := base
	var (
		site   siteOptions
		output string
	)

	cmd := &cobra.Command{
		Use:   "collect-links [category-url]",
		Short: "Write every product link of a category to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := global.logger
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			selected, err := site.load()
			if err != nil {
				return err
			}
			adapter, err := parser.NewSiteAdapter(selected, logger)
			if err != nil {
				return err
			}
			client, err := fetcher.NewClient(cfg, nil, logger)
			if err != nil {
				return fmt.Errorf("initialising fetcher: %w", err)
			}

			memory := storage.NewMemory()
			orchestrator, err := scraper.New(cfg, websiteFor(selected), adapter, scraper.Dependencies{
				Fetcher:   client,
				Websites:  memory,
				Jobs:      memory,
				Products:  memory,
				Snapshots: diagnostics.NewSnapshotter(cfg.DiagnosticsDir, logger),
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			target := selected.EntryURL()
			if len(args) > 0 {
				target = args[0]
			}
			links, err := orchestrator.CollectLinks(cmd.Context(), target)
			if err != nil {
				return fmt.Errorf("collecting links: %w", err)
			}

			writer, err := pipeline.NewLinkWriter(output)
			if err != nil {
				return err
			}
			if err := writer.WriteLinks(links); err != nil {
				_ = writer.Close()
				return err
			}
			if err := writer.Close(); err != nil {
				return err
			}
			logger.Info("links written", slog.Int("count", writer.Count()), slog.String("output", output))
			fmt.Fprintf(cmd.OutOrStdout(), "%d links written to %s\n", writer.Count(), output)
			return nil
		},
	}

	addSiteFlags(cmd, &site)
	addListingFlags(cmd, &cfg)
	cmd.Flags().StringVar(&output, "output", "links.txt", "File to write the product links to")
	return cmd
}
