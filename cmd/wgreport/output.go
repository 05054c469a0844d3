package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/hub"
)

func writeReport(w io.Writer, format string, r wgcore.GlobalReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		return writeText(w, r)
	}
	return fmt.Errorf("unknown format %q (want json, yaml or text)", format)
}

// writeText prints one table per backend, skipping empty registries.
func writeText(w io.Writer, r wgcore.GlobalReport) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	row := func(name string, rr hub.RegistryReport) {
		p.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t\n", name,
			rr.NumAllocated, rr.NumKeptFromUser, rr.NumReleasedFromUser, rr.NumError, rr.ElementSize)
	}
	header := func(title string) {
		fmt.Fprintf(tw, "%s\tallocated\tkept\treleased\terror\tsize\t\n", title)
	}

	header("global")
	row("surfaces", r.Surfaces)
	for _, b := range r.Hubs {
		fmt.Fprintln(tw, "\t\t\t\t\t\t")
		header(b.Backend)
		for _, hr := range b.Hub.Rows() {
			if hr.Report.IsEmpty() {
				continue
			}
			row(hr.Name, hr.Report)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sc := r.ShaderCache
	_, err := p.Fprintf(w, "\nshader cache: %d entries, %d hits, %d misses, %d evictions\n",
		sc.Len, sc.Hits, sc.Misses, sc.Evictions)
	return err
}
