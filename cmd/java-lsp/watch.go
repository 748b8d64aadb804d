package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emilycares/java-lsp/internal/config"
	"github.com/emilycares/java-lsp/internal/server"
	"github.com/emilycares/java-lsp/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index the project and keep the index current as files change",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}
	cfg := config.Load(root)

	srv := server.New(root, cfg)
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.IndexProject(ctx); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	if !cfg.EffectiveWatch() {
		return fmt.Errorf("watching is disabled in .java-lsp.yaml")
	}

	w := watcher.New(root,
		func(ctx context.Context, path string, removed bool) error {
			return srv.ReindexFile(ctx, path, removed)
		},
		func(ctx context.Context) error {
			return srv.ResolveDependencies(ctx)
		})

	fmt.Fprintf(os.Stderr, "Watching %s\n", root)
	w.Run(ctx)
	return nil
}
