package cmd

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"

	"ollama-gateway/internal/version"
)

const description = `ollama-gateway is an OpenAI-compatible API in front of a local Ollama server.`

// CLI is the root command structure. Flags may also be set through the
// environment; both override values from the configuration file.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server"`
	Version VersionCmd `cmd:"" help:"Print the version and exit"`
}

// Execute parses args and runs the selected command.
func Execute(ctx context.Context, args []string) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("ollama-gateway"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return fmt.Errorf("build command line parser: %w", err)
	}

	if len(args) == 0 {
		args = []string{"--help"}
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run()
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Println(version.Version)
	return nil
}
