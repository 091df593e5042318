// Inspect the box tree of a saved workspace.
// Usage: go run ./cmd/inspect_box <workspace-dir>
// Example: go run ./cmd/inspect_box data/run42
package main

import (
	"fmt"
	"log/slog"
	"os"

	"MDEventDB/config"
	"MDEventDB/workspace"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <workspace-dir>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s data/run42\n", os.Args[0])
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	w, err := workspace.Open(os.Args[1], config.DefaultConfig(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	if err := w.Tree().Dump(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
