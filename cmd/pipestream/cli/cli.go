// Package cli implements the pipestream command tree.
//
// Every command reads its payload from a file argument or stdin and writes
// the result to stdout (or --output). Configuration comes from the config
// file in the home directory, overlaid with PIPESTREAM_* environment
// variables; command flags override both.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"

	"pipestream/internal/capture"
	"pipestream/internal/capture/azure"
	"pipestream/internal/capture/file"
	"pipestream/internal/capture/gcs"
	"pipestream/internal/capture/memory"
	"pipestream/internal/capture/s3"
	"pipestream/internal/config"
	"pipestream/internal/home"
	"pipestream/internal/logging"

	"github.com/spf13/cobra"
)

// Env carries process-wide state from main into the commands.
type Env struct {
	Version string

	// Handler receives every record that passes the component filter. It
	// should accept all levels.
	Handler slog.Handler

	logger *slog.Logger
	filter *logging.ComponentFilterHandler
}

// Logger returns the logger configured from the --log-level flags. It is
// only valid once a command has started running.
func (e *Env) Logger() *slog.Logger {
	return logging.Default(e.logger)
}

// NewRootCommand returns the "pipestream" command with all subcommands wired in.
func NewRootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "pipestream",
		Short:         "Stream payloads through decompression, namespace rewriting and capture",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.setupLogging(cmd)
		},
	}

	root.PersistentFlags().String("home", "", "home directory (default: platform config dir)")
	root.PersistentFlags().String("config", "", "config file (default: <home>/config.json)")
	root.PersistentFlags().String("log-level", "info", "default log level: debug, info, warn, error")
	root.PersistentFlags().StringArray("log-component", nil, "per-component log level as component=level (repeatable)")

	root.AddCommand(
		newRunCmd(env),
		newCaptureCmd(env),
		newRedeemCmd(env),
		newRewriteCmd(env),
		newCompressCmd(env),
		newDecompressCmd(env),
		newConcatCmd(env),
		newMultipartCmd(env),
		newInspectCmd(env),
		newInitCmd(env),
		newVersionCmd(env),
	)
	return root
}

func (e *Env) setupLogging(cmd *cobra.Command) error {
	levelFlag, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelFlag)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", levelFlag, err)
	}
	handler := e.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	e.filter = logging.NewComponentFilterHandler(handler, level)

	components, _ := cmd.Flags().GetStringArray("log-component")
	for _, c := range components {
		name, lvl, ok := strings.Cut(c, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --log-component %q (want component=level)", c)
		}
		var l slog.Level
		if err := l.UnmarshalText([]byte(lvl)); err != nil {
			return fmt.Errorf("invalid --log-component %q: %w", c, err)
		}
		e.filter.SetLevel(name, l)
	}
	e.logger = slog.New(e.filter)
	return nil
}

// registry returns the capture store factories known to the CLI.
func registry() capture.Registry {
	return capture.Registry{
		"file":   file.NewFactory(),
		"memory": memory.NewFactory(),
		"s3":     s3.NewFactory(),
		"gcs":    gcs.NewFactory(),
		"azure":  azure.NewFactory(),
	}
}

// resolveHome returns the home directory from --home or the platform default.
func resolveHome(cmd *cobra.Command) (home.Dir, error) {
	homeFlag, _ := cmd.Flags().GetString("home")
	if homeFlag != "" {
		return home.New(homeFlag), nil
	}
	return home.Default()
}

// loadConfig reads the config file, falling back to defaults rooted in the
// home directory, then applies the environment overlay and validates.
func loadConfig(cmd *cobra.Command) (*config.Config, home.Dir, error) {
	hd, err := resolveHome(cmd)
	if err != nil {
		return nil, hd, fmt.Errorf("resolve home directory: %w", err)
	}
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = hd.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, hd, err
	}
	if cfg == nil {
		cfg = config.Default(hd.Root())
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, hd, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, hd, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, hd, nil
}

// openStore opens the configured capture store. Local directories default
// to the home directory layout.
func openStore(cfg *config.Config, hd home.Dir, logger *slog.Logger) (capture.Store, error) {
	params := maps.Clone(cfg.Capture.Params)
	if params == nil {
		params = make(map[string]string)
	}
	switch cfg.Capture.Type {
	case "file":
		if params[file.ParamDir] == "" {
			params[file.ParamDir] = hd.CapturesDir()
		}
	case "s3", "gcs", "azure":
		if params["spoolDir"] == "" {
			if err := os.MkdirAll(hd.SpoolDir(), 0o750); err != nil {
				return nil, fmt.Errorf("create spool directory: %w", err)
			}
			params["spoolDir"] = hd.SpoolDir()
		}
	}
	return registry().Open(cfg.Capture.Type, params, logger)
}

// closeStore releases stores that hold resources.
func closeStore(store capture.Store) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

// openInput opens the payload named by args, or stdin when there is none
// or it is "-".
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), "", nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, "", err
	}
	return f, args[0], nil
}

// createOutput opens the --output file, or stdout when it is unset or "-".
func createOutput(cmd *cobra.Command) (io.WriteCloser, error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" || path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	f, err := os.Create(path) //nolint:gosec // G304: output path is user-supplied by design
	if err != nil {
		return nil, err
	}
	return f, nil
}

// copyOut drains r into the --output destination.
func copyOut(cmd *cobra.Command, r io.Reader) (int64, error) {
	w, err := createOutput(cmd)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return n, err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "O", "", "write the result to this file instead of stdout")
}

func newVersionCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), env.Version)
		},
	}
}
