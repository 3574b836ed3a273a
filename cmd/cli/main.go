package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/p4grid/internal/app"
	"github.com/vk/p4grid/internal/cli"
)

// main is the entrypoint for the p4grid runner.
func main() {
	// Minimal logger until the configured one takes over.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	cfg, opts, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	ctx := context.Background()

	if opts.Clean || opts.CleanDir {
		app.Clean(ctx, cfg)
		if opts.CleanDir {
			return nil
		}
	}

	runner, err := app.NewApp(outW, cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
