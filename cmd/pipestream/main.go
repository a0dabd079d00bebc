// Command pipestream streams payloads through decompression, namespace
// rewriting and capture.
//
// Logging:
//   - Base handler is created here with output format and destination
//   - Per-component levels are applied by a ComponentFilterHandler built
//     from the --log-level and --log-component flags
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"log/slog"
	"os"

	"pipestream/cmd/pipestream/cli"
)

var version = "dev"

func main() {
	env := &cli.Env{
		Version: version,
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug, // Allow all levels; filtering done by ComponentFilterHandler
		}),
	}
	if err := cli.NewRootCommand(env).Execute(); err != nil {
		os.Exit(1)
	}
}
