package cli

import (
	"errors"
	"fmt"
	"os"

	"pipestream/internal/config"

	"github.com/spf13/cobra"
)

func newInitCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the home directory and a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hd, err := resolveHome(cmd)
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			if err := hd.EnsureExists(); err != nil {
				return err
			}
			id, err := hd.InstanceID()
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = hd.ConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := config.Save(path, config.Default(hd.Root())); err != nil {
				return err
			}
			env.Logger().With("component", "cli").Info("initialized home directory", "path", hd.Root(), "instance", id)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}
