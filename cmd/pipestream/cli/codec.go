package cli

import (
	"fmt"
	"path/filepath"

	"pipestream/internal/codec"

	"github.com/spf13/cobra"
)

func newCompressCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress [file]",
		Short: "Compress a payload as zip, gzip, zstd or brotli",
		Long:  "Compresses a payload. zip and gzip output carry a single entry named after the input file unless --entry-name is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("codec")
			if name == "" {
				name = cfg.Codec.Compress
			}
			if name == "" {
				name = codec.Gzip.String()
			}
			f, err := codec.ParseFormat(name)
			if err != nil {
				return err
			}
			opts, err := cfg.Codec.Options(f)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("level") {
				opts.Level, _ = cmd.Flags().GetInt("level")
			}

			src, location, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("entry-name"); v != "" {
				opts.EntryName = v
			} else if opts.EntryName == "" && location != "" {
				opts.EntryName = filepath.Base(location)
			}

			c, err := codec.NewCompressor(src, opts)
			if err != nil {
				_ = src.Close()
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := copyOut(cmd, c)
			if err != nil {
				return fmt.Errorf("compress: %w", err)
			}
			env.Logger().With("component", "cli").Debug("payload compressed", "format", f.String(), "entry", opts.EntryName, "bytes", n)
			return nil
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().StringP("codec", "c", "", "format: zip, gzip, zstd or brotli (default from config, else gzip)")
	cmd.Flags().String("entry-name", "", "entry name for zip and gzip")
	cmd.Flags().Int("level", 0, "compression level (0 selects the format default)")
	return cmd
}

func newDecompressCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decompress [file]",
		Short: "Decompress a zip, gzip, zstd or brotli payload",
		Long:  "Decompresses a payload. The format comes from --codec, the config, or the input file extension.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("codec")
			if name == "" {
				name = cfg.Codec.Decompress
			}
			if name == "" && len(args) > 0 {
				name = filepath.Ext(args[0])
			}
			if name == "" {
				return fmt.Errorf("cannot tell the input format; use --codec")
			}
			f, err := codec.ParseFormat(name)
			if err != nil {
				return err
			}
			opts, err := cfg.Codec.Options(f)
			if err != nil {
				return err
			}

			src, _, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			d, err := codec.NewDecompressor(src, opts)
			if err != nil {
				_ = src.Close()
				return err
			}
			defer func() { _ = d.Close() }()

			if _, err := copyOut(cmd, d); err != nil {
				return fmt.Errorf("decompress: %w", err)
			}
			if d.EntryName() != "" {
				env.Logger().With("component", "cli").Info("payload decompressed", "format", f.String(), "entry", d.EntryName())
			}
			return nil
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().StringP("codec", "c", "", "format: zip, gzip, zstd or brotli")
	return cmd
}
