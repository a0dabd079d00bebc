package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"pipestream/internal/stream"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

func newConcatCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concat <pattern>...",
		Short: "Concatenate payloads in order",
		Long: "Concatenates the files matching each pattern (doublestar globs such as 'in/**/*.xml'). " +
			"Matches of one pattern are taken in lexical order; patterns are taken in the order given. " +
			"With --xml the parts are wrapped in an aggregation envelope instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}

			parts := make([]io.ReadCloser, 0, len(paths))
			for _, p := range paths {
				f, err := os.Open(p) //nolint:gosec // G304: paths come from user-supplied patterns
				if err != nil {
					for _, open := range parts {
						_ = open.Close()
					}
					return err
				}
				parts = append(parts, f)
			}

			var r io.ReadCloser
			if asXML, _ := cmd.Flags().GetBool("xml"); asXML {
				r = stream.NewAggregateReader(parts...)
			} else {
				r = stream.NewConcatReader(parts...)
			}
			defer func() { _ = r.Close() }()

			n, err := copyOut(cmd, r)
			if err != nil {
				return err
			}
			env.Logger().With("component", "cli").Debug("payloads concatenated", "parts", len(parts), "bytes", n)
			return nil
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().Bool("xml", false, "wrap each part in an XML aggregation envelope")
	return cmd
}

// expandPatterns resolves each glob to its matches in lexical order.
// A pattern without glob syntax must name an existing file.
func expandPatterns(patterns []string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%q: %w", pattern, os.ErrNotExist)
		}
		slices.Sort(matches)
		out = append(out, matches...)
	}
	if len(out) == 0 {
		return nil, errors.New("no input files")
	}
	return out, nil
}

func newMultipartCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multipart [file]",
		Short: "Frame a payload as a single-part multipart/form-data body",
		Long:  "Wraps a payload in multipart/form-data framing with a random boundary. The matching Content-Type is printed to stderr.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			mp := stream.NewMultipartReader(src)
			defer func() { _ = mp.Close() }()

			if _, err := copyOut(cmd, mp); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Content-Type: %s\n", mp.ContentType())
			env.Logger().With("component", "cli").Debug("payload framed", "boundary", mp.Boundary())
			return nil
		},
	}
	addOutputFlag(cmd)
	return cmd
}
