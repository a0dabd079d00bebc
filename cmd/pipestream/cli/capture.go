package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"pipestream/internal/capture"
	"pipestream/internal/pipeline"

	"github.com/spf13/cobra"
)

func newRunCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Stream a payload through the configured pipeline",
		Long: "Decompresses, rewrites and optionally captures a payload as configured, writing the result to stdout. " +
			"When capture is enabled the locator is printed to stderr.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			cfg, hd, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if c, _ := cmd.Flags().GetBool("capture"); c {
				cfg.Capture.Enabled = true
			}

			var store capture.Store
			if cfg.Capture.Enabled {
				if store, err = openStore(cfg, hd, env.Logger()); err != nil {
					return err
				}
				defer closeStore(store)
			}

			src, _, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			orch, err := pipeline.Build(ctx, src, cfg, store, pipeline.WithLogger(env.Logger()))
			if err != nil {
				return err
			}
			defer func() { _ = orch.Close() }()

			if _, err := copyOut(cmd, orch); err != nil {
				return err
			}
			if desc, ok := orch.Descriptor(); ok {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", desc.Mode, desc.Locator)
			}
			return nil
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().Bool("capture", false, "capture the payload even if the config does not enable it")
	return cmd
}

func newCaptureCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture [file]",
		Short: "Capture a payload into the configured store",
		Long:  "Drains a payload through the configured pipeline into a claimed capture and prints its locator.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			cfg, hd, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Capture.Enabled = true
			cfg.Capture.Mode = capture.Claimed.String()

			store, err := openStore(cfg, hd, env.Logger())
			if err != nil {
				return err
			}
			defer closeStore(store)

			src, _, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			orch, err := pipeline.Build(ctx, src, cfg, store, pipeline.WithLogger(env.Logger()))
			if err != nil {
				return err
			}
			defer func() { _ = orch.Close() }()

			if err := orch.Capture(); err != nil {
				return fmt.Errorf("capture: %w", err)
			}
			desc, _ := orch.Descriptor()
			length, _ := orch.Length()

			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return p.details(map[string]any{
				"locator": desc.Locator,
				"mode":    desc.Mode.String(),
				"store":   cfg.Capture.Type,
				"bytes":   length,
			},
				field{"Locator", desc.Locator},
				field{"Mode", desc.Mode.String()},
				field{"Store", cfg.Capture.Type},
				field{"Bytes", strconv.FormatInt(length, 10)},
			)
		},
	}
	addFormatFlag(cmd)
	return cmd
}

func newRedeemCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redeem <locator>",
		Short: "Write a captured payload to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			cfg, hd, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg, hd, env.Logger())
			if err != nil {
				return err
			}
			defer closeStore(store)

			orch, err := pipeline.Redeem(ctx, store, args[0], pipeline.WithLogger(env.Logger()))
			if err != nil {
				return err
			}
			_, err = copyOut(cmd, orch)
			if cerr := orch.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}

			if del, _ := cmd.Flags().GetBool("delete"); del {
				return deleteCapture(ctx, store, args[0])
			}
			return nil
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().Bool("delete", false, "delete the capture after it was written out")
	return cmd
}

func deleteCapture(ctx context.Context, store capture.Store, locator string) error {
	if err := store.Delete(ctx, locator); err != nil {
		return fmt.Errorf("delete %s: %w", locator, err)
	}
	return nil
}
