package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

const timeLayout = "2006-01-02 15:04:05"

// printer writes aligned text tables.
type printer struct {
	tw *tabwriter.Writer
}

func (p *printer) header(cols ...string) {
	fmt.Fprintln(p.tw, strings.Join(cols, "\t"))
}

func (p *printer) cols(values ...any) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(p.tw, strings.Join(parts, "\t"))
}

func (p *printer) row(key string, value any) {
	fmt.Fprintf(p.tw, "%s:\t%v\n", key, value)
}

// render writes v as indented JSON or through the text callback.
func render(w io.Writer, format string, v any, text func(*printer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	p := &printer{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
	text(p)
	return p.tw.Flush()
}
