package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/registry/internal/registry"
)

// outputFormat is a supported --output value.
type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func validateOutputFormat(format string) error {
	switch outputFormat(format) {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format %q: must be one of table, json, yaml", format)
	}
}

// writeStructured renders v as JSON or YAML. YAML is converted from the JSON
// encoding so both formats share field names.
func writeStructured(w io.Writer, format outputFormat, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	if format == outputJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// outcomeView is the printable form of an Outcome.
type outcomeView struct {
	DryRun     bool     `json:"dryRun,omitempty"`
	Total      int      `json:"total"`
	Inserted   int      `json:"inserted"`
	Updated    int      `json:"updated"`
	Chunks     int      `json:"chunks"`
	Failed     int      `json:"failedChunks"`
	RolledBack int      `json:"rolledBack"`
	Skipped    *int     `json:"skipped,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Duration   string   `json:"duration"`
}

func newOutcomeView(o *registry.Outcome, dryRun bool) outcomeView {
	v := outcomeView{
		DryRun:     dryRun,
		Total:      o.Total,
		Inserted:   o.Inserted,
		Updated:    o.Updated,
		Chunks:     o.Chunks,
		Failed:     o.Failed,
		RolledBack: o.RolledBack,
		Skipped:    o.Skipped,
		Duration:   o.Duration.Round(time.Millisecond).String(),
	}
	for _, e := range o.Errors {
		v.Errors = append(v.Errors, e.String())
	}
	return v
}

func printOutcome(w io.Writer, format outputFormat, o *registry.Outcome, dryRun bool) error {
	view := newOutcomeView(o, dryRun)
	if format != outputTable {
		return writeStructured(w, format, view)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("RESULT"), text.FgHiCyan.Sprint("COUNT")})
	t.AppendRow(table.Row{"Total", view.Total})
	t.AppendRow(table.Row{"Inserted", view.Inserted})
	t.AppendRow(table.Row{"Updated", view.Updated})
	t.AppendRow(table.Row{"Chunks", view.Chunks})
	if view.Failed > 0 {
		t.AppendRow(table.Row{text.FgRed.Sprint("Failed chunks"), view.Failed})
		t.AppendRow(table.Row{text.FgRed.Sprint("Rolled back"), view.RolledBack})
	}
	if view.Skipped != nil {
		t.AppendRow(table.Row{"Skipped rows", *view.Skipped})
	}
	t.AppendFooter(table.Row{"Duration", view.Duration})
	t.Render()

	if len(view.Errors) > 0 {
		fmt.Fprintf(w, "\n%s\n", text.FgRed.Sprint("Errors:"))
		for _, e := range view.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if dryRun {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("Dry run: nothing was written"))
	}
	return nil
}

func printRecords(w io.Writer, format outputFormat, records []registry.Record) error {
	if format != outputTable {
		if records == nil {
			records = []registry.Record{}
		}
		return writeStructured(w, format, records)
	}

	if len(records) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No professionals found"))
		return nil
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"NAME", "CPF", "REGISTRATION", "STATUS", "CITY", "STATE", "REGISTERED"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.FullName,
			r.TaxID,
			r.CredentialNumber,
			statusColor(r.Status).Sprint(r.Status),
			r.City,
			r.State,
			r.RegistrationDate.Format("02/01/2006"),
		})
	}
	t.Render()
	return nil
}

func statusColor(status string) text.Colors {
	switch {
	case status == "Regular":
		return text.Colors{text.FgGreen}
	case strings.HasPrefix(status, "Cancelado"):
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgYellow}
	}
}
