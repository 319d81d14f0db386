package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"textingest/internal/domain"
	"textingest/internal/etl"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// previewRow is one decoded line as shown by the preview command.
type previewRow struct {
	Line   int        `json:"line"`
	Record etl.Record `json:"record"`
	Errors []string   `json:"errors,omitempty"`
}

func previewRows(records []etl.Record) []previewRow {
	rows := make([]previewRow, len(records))
	for i, r := range records {
		rows[i] = previewRow{Line: r.Line, Record: r}
		for _, fe := range r.Errors() {
			rows[i].Errors = append(rows[i].Errors, fe.Error())
		}
	}
	return rows
}

// printSummary writes a human-readable run summary.
func printSummary(w io.Writer, s *etl.RunSummary) {
	fmt.Fprintf(w, "run %s  schema=%s  source=%s\n", s.RunID, s.Schema, s.Source)
	fmt.Fprintf(w, "status:        %s\n", s.Status())
	fmt.Fprintf(w, "lines read:    %d\n", s.LinesRead)
	fmt.Fprintf(w, "decoded:       %d\n", s.Decoded)
	fmt.Fprintf(w, "decode failed: %d\n", s.DecodeFailed)

	sinks := make([]string, 0, len(s.Delivered))
	for k := range s.Delivered {
		sinks = append(sinks, string(k))
	}
	sort.Strings(sinks)
	for _, k := range sinks {
		kind := etl.SinkKind(k)
		fmt.Fprintf(w, "%-14s delivered=%d failed=%d\n", k+":", s.Delivered[kind], s.DeliveryFailed[kind])
	}
	fmt.Fprintf(w, "duration:      %s\n", s.Duration.Round(time.Millisecond))

	if len(s.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, "failures:")
	for _, f := range s.Failures {
		where := f.Stage
		if f.Sink != "" {
			where += "/" + string(f.Sink)
		}
		if len(f.Fields) > 0 {
			where += " [" + strings.Join(f.Fields, ",") + "]"
		}
		fmt.Fprintf(w, "  line %d %s: %s\n", f.Line, where, f.Message)
	}
	if s.OmittedFailures > 0 {
		fmt.Fprintf(w, "  ... %d more failures omitted\n", s.OmittedFailures)
	}
}

// printSchema writes the validated layout of a schema.
func printSchema(w io.Writer, s *etl.Schema) {
	fmt.Fprintf(w, "schema %s (version %d)\n", s.Name, s.Version)
	fmt.Fprintf(w, "file type:   %s", s.FileType)
	if s.FileType == etl.FileTypeCSV {
		fmt.Fprintf(w, " (delimiter %q)", s.Delimiter)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "destination: %s -> %s\n", s.Destination, s.StorageName)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tSIZE\tNAME\tTYPE")
	for _, f := range s.Fields {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", f.Position, f.Size, f.Name, f.Type)
	}
	tw.Flush()
}

func printRuns(w io.Writer, logs []domain.RunLog) {
	if len(logs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tTRIGGER\tSCHEMA\tLINES\tDECODED\tDELIVERED\tFAILED\tDATA")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			l.StartedAt.Local().Format(time.DateTime), l.Status, l.Trigger, l.Schema,
			l.LinesRead, l.Decoded, l.Delivered, l.DecodeFailed+l.DeliveryFailed, l.DataPath,
		)
	}
	tw.Flush()
}
