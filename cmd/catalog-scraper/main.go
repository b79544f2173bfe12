package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.DefaultConfig()
	if err := config.ApplyEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(cfg).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	verbose  bool
	logFile  string
	logger   *slog.Logger
	closeLog func() error
}

func newRootCommand(cfg config.Config) *cobra.Command {
	global := &globalOptions{logger: slog.Default()}
	logFileDefault, _ := config.EnvString("SCRAPER_LOG_FILE")

	root := &cobra.Command{
		Use:           "catalog-scraper",
		Short:         "Collect product catalogs from configured e-commerce sites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, closeLog, level, err := newLogger(os.Stdout, global.verbose, global.logFile)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level)
			global.logger = logger
			global.closeLog = closeLog
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if global.closeLog == nil {
				return nil
			}
			return global.closeLog()
		},
	}
	root.PersistentFlags().BoolVarP(&global.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&global.logFile, "log-file", logFileDefault, "Also write JSON logs to this file")

	root.AddCommand(
		newScrapeCommand(cfg, global),
		newCollectLinksCommand(cfg, global),
		newSitesCommand(),
	)
	return root
}
