package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emilycares/java-lsp/internal/config"
	"github.com/emilycares/java-lsp/internal/position"
	"github.com/emilycares/java-lsp/internal/server"
)

var hoverCmd = &cobra.Command{
	Use:   "hover <file> <line>:<col>",
	Short: "Show the type or signature of the symbol at a position",
	Args:  cobra.ExactArgs(2),
	RunE:  runHover,
}

var completeCmd = &cobra.Command{
	Use:   "complete <file> <line>:<col>",
	Short: "List completion candidates at a position",
	Args:  cobra.ExactArgs(2),
	RunE:  runComplete,
}

var definitionCmd = &cobra.Command{
	Use:   "definition <file> <line>:<col>",
	Short: "Locate the declaration of the symbol at a position",
	Args:  cobra.ExactArgs(2),
	RunE:  runDefinition,
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics <file>",
	Short: "Report problems in a source file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnostics,
}

// openSession indexes the project and opens one file as a tracked document.
func openSession(ctx context.Context, file string) (*server.Server, string, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, "", err
	}
	path, err := filepath.Abs(file)
	if err != nil {
		return nil, "", err
	}

	srv := server.New(root, config.Load(root))
	if err := srv.IndexProject(ctx); err != nil {
		srv.Close()
		return nil, "", fmt.Errorf("indexing: %w", err)
	}

	text, err := os.ReadFile(path)
	if err != nil {
		srv.Close()
		return nil, "", err
	}
	if err := srv.OpenDocument(path, string(text)); err != nil {
		srv.Close()
		return nil, "", err
	}
	return srv, path, nil
}

// parsePoint parses a 1-based "line:col" argument into a protocol point.
func parsePoint(arg string) (position.Point, error) {
	line, col, ok := strings.Cut(arg, ":")
	if !ok {
		return position.Point{}, fmt.Errorf("position %q: want <line>:<col>", arg)
	}
	l, err := strconv.Atoi(line)
	if err != nil || l < 1 {
		return position.Point{}, fmt.Errorf("position %q: bad line", arg)
	}
	c, err := strconv.Atoi(col)
	if err != nil || c < 1 {
		return position.Point{}, fmt.Errorf("position %q: bad column", arg)
	}
	return position.Point{Line: uint32(l - 1), Character: uint32(c - 1)}, nil
}

func runHover(cmd *cobra.Command, args []string) error {
	at, err := parsePoint(args[1])
	if err != nil {
		return err
	}
	ctx := context.Background()
	srv, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer srv.Close()

	res, err := srv.Hover(ctx, path, at)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Println("no symbol at position")
		return nil
	}
	fmt.Println(res.Contents)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	at, err := parsePoint(args[1])
	if err != nil {
		return err
	}
	ctx := context.Background()
	srv, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer srv.Close()

	items, err := srv.Complete(ctx, path, at)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Detail != "" {
			fmt.Printf("%s\t%s\n", item.Label, item.Detail)
		} else {
			fmt.Println(item.Label)
		}
	}
	return nil
}

func runDefinition(cmd *cobra.Command, args []string) error {
	at, err := parsePoint(args[1])
	if err != nil {
		return err
	}
	ctx := context.Background()
	srv, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer srv.Close()

	loc, err := srv.Definition(ctx, path, at)
	if err != nil {
		return err
	}
	if loc == nil {
		fmt.Println("no project definition found")
		return nil
	}
	fmt.Printf("%s:%d\n", loc.Path, loc.Line+1)
	return nil
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	srv, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer srv.Close()

	diags, err := srv.Diagnostics(ctx, path)
	if err != nil {
		return err
	}
	for _, d := range diags {
		fmt.Printf("%s:%d:%d: %s: %s\n",
			args[0], d.Range.Start.Line+1, d.Range.Start.Character+1,
			severityName(d.Severity), d.Message)
	}
	if len(diags) == 0 {
		fmt.Println("no problems found")
	}
	return nil
}

func severityName(s position.Severity) string {
	switch s {
	case position.SeverityError:
		return "error"
	case position.SeverityWarning:
		return "warning"
	case position.SeverityInformation:
		return "info"
	default:
		return "hint"
	}
}
