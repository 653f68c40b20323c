// Command ollama-gateway serves an OpenAI-compatible HTTP API backed by a
// local Ollama server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ollama-gateway/cmd"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx, os.Args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted before startup completed")
		return 130
	default:
		slog.Error("ollama-gateway failed", "err", err)
		return 1
	}
}
