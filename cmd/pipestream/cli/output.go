package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// field is one line of a detail view.
type field struct {
	name  string
	value string
}

// printer renders command results as aligned text or indented JSON,
// selected by the --format flag.
type printer struct {
	asJSON bool
	w      io.Writer
}

func newPrinter(cmd *cobra.Command) (*printer, error) {
	p := &printer{w: cmd.OutOrStdout()}
	switch f, _ := cmd.Flags().GetString("format"); f {
	case "", "table":
	case "json":
		p.asJSON = true
	default:
		return nil, fmt.Errorf("unknown output format %q (want table or json)", f)
	}
	return p, nil
}

// details prints v as JSON, or fields as "Name: value" lines.
func (p *printer) details(v any, fields ...field) error {
	if p.asJSON {
		return p.json(v)
	}
	tw := p.tabs()
	for _, f := range fields {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", f.name, f.value)
	}
	return tw.Flush()
}

// list prints v as JSON, or header and rows as a table.
func (p *printer) list(v any, header []string, rows [][]string) error {
	if p.asJSON {
		return p.json(v)
	}
	tw := p.tabs()
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) tabs() *tabwriter.Writer {
	return tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "table", "output format: table or json")
}
