package cli

import (
	"fmt"
	"strconv"
	"time"

	"pipestream/internal/capture/file"

	"github.com/spf13/cobra"
)

func newInspectCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [locator]",
		Short: "List captures in a file store, or show one",
		Long:  "Reads capture metadata from a file store: the configured one, or the directory given with --dir.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				cfg, hd, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				if cfg.Capture.Type != "file" {
					return fmt.Errorf("inspect needs a file store, config uses %q (use --dir)", cfg.Capture.Type)
				}
				dir = cfg.Capture.Params[file.ParamDir]
				if dir == "" {
					dir = hd.CapturesDir()
				}
			}

			store, err := file.NewStore(file.Config{Dir: dir, Logger: env.Logger()})
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				md, err := store.Stat(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return p.details(md,
					field{"Locator", md.Locator},
					field{"Size", strconv.FormatInt(md.Size, 10)},
					field{"Frames", strconv.Itoa(md.Frames)},
					field{"Compressed", strconv.FormatBool(md.Compressed)},
					field{"Created", md.Created.Format(time.RFC3339)},
				)
			}

			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, md := range list {
				rows = append(rows, []string{
					md.Locator,
					strconv.FormatInt(md.Size, 10),
					strconv.FormatBool(md.Compressed),
					md.Created.Format(time.RFC3339),
				})
			}
			return p.list(list, []string{"LOCATOR", "SIZE", "COMPRESSED", "CREATED"}, rows)
		},
	}
	addFormatFlag(cmd)
	cmd.Flags().String("dir", "", "file store directory (default: from config)")
	return cmd
}
