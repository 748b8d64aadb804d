package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/emilycares/java-lsp/internal/config"
	"github.com/emilycares/java-lsp/internal/server"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the project, its dependencies and the JDK runtime",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}

	start := time.Now()
	srv := server.New(root, config.Load(root))
	defer srv.Close()

	if err := srv.IndexProject(context.Background()); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	p, d, r := srv.Universe.Size()
	fmt.Fprintf(os.Stderr, "Indexed %s in %s\n", root, time.Since(start).Round(time.Millisecond))
	fmt.Printf("project types:    %d\n", p)
	fmt.Printf("dependency types: %d\n", d)
	fmt.Printf("runtime types:    %d\n", r)

	for _, msg := range srv.DependencyDiagnostics() {
		fmt.Printf("warning: %s\n", msg)
	}
	for _, diag := range srv.Universe.Diagnostics() {
		fmt.Printf("warning: %s\n", diag.Message)
	}
	return nil
}
