package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

func newTable(out io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	return tw
}

// formatRunsList writes a table of runs with their counters.
func formatRunsList(out io.Writer, runs []importer.Run) {
	tw := newTable(out)
	tw.AppendHeader(table.Row{"ID", "SOURCE", "STATUS", "FOUND", "INS", "UPD", "CONFL", "ERR", "DEDUP", "CREATED", "DURATION"})
	for _, r := range runs {
		c := r.Counters
		tw.AppendRow(table.Row{
			truncateID(r.ID),
			r.Source,
			runStatusLabel(r),
			c.Found, c.Inserted, c.Updated, c.Conflicts, c.Errors, c.Deduped,
			r.CreatedAt.Format("2006-01-02 15:04"),
			runDuration(r),
		})
	}
	tw.Render()
}

// formatRunDetail writes one run as a key/value table.
func formatRunDetail(out io.Writer, r *importer.Run) {
	tw := newTable(out)
	tw.AppendRow(table.Row{"ID", r.ID})
	tw.AppendRow(table.Row{"Source", r.Source})
	tw.AppendRow(table.Row{"Status", runStatusLabel(*r)})
	if r.CityID != nil {
		tw.AppendRow(table.Row{"City", *r.CityID})
	}
	if r.NicheID != nil {
		tw.AppendRow(table.Row{"Niche", *r.NicheID})
	}
	if r.Query != nil {
		tw.AppendRow(table.Row{"Query", *r.Query})
	}
	if r.ActorID != "" {
		tw.AppendRow(table.Row{"Actor", r.ActorID})
	}
	tw.AppendRow(table.Row{"Counters", formatCounters(r.Counters)})
	if r.Error != "" {
		tw.AppendRow(table.Row{"Error", r.Error})
	}
	tw.AppendRow(table.Row{"Created", r.CreatedAt.Format(time.RFC3339)})
	if r.FinishedAt != nil {
		tw.AppendRow(table.Row{"Finished", r.FinishedAt.Format(time.RFC3339)})
	}
	if r.InvalidatedAt != nil {
		tw.AppendRow(table.Row{"Invalidated", r.InvalidatedAt.Format(time.RFC3339) + " by " + r.InvalidatedBy})
	}
	tw.Render()
}

// formatRecordsList writes one row per record with its projection.
func formatRecordsList(out io.Writer, page *importer.RecordPage) {
	tw := newTable(out)
	tw.AppendHeader(table.Row{"#", "ID", "STATUS", "NAME", "PHONE", "CITY", "COMPANY", "REASON"})
	for _, r := range page.Records {
		company := ""
		if r.CompanyID != nil {
			company = strconv.FormatInt(*r.CompanyID, 10)
		}
		tw.AppendRow(table.Row{
			r.Position,
			truncateID(r.ID),
			r.Status,
			truncate(r.Projection.Name, 30),
			r.Projection.Phone,
			r.Projection.City,
			company,
			r.Reason,
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", "", "TOTAL", fmt.Sprintf("%d-%d of %d", page.Offset+min(1, len(page.Records)), page.Offset+len(page.Records), page.Total)})
	tw.Render()
}

// formatPublishResult summarizes a publish call and its error samples.
func formatPublishResult(out io.Writer, res *importer.PublishResult) {
	_, _ = fmt.Fprintf(out, "Processed %d records: %s\n", res.Processed, formatCounters(res.Delta))
	if len(res.Samples) == 0 {
		return
	}
	tw := newTable(out)
	tw.AppendHeader(table.Row{"RECORD", "ERROR"})
	for _, s := range res.Samples {
		tw.AppendRow(table.Row{s.RecordID, s.Reason})
	}
	tw.Render()
}

func formatCounters(c importer.Counters) string {
	return fmt.Sprintf("found=%d inserted=%d updated=%d conflicts=%d errors=%d deduped=%d",
		c.Found, c.Inserted, c.Updated, c.Conflicts, c.Errors, c.Deduped)
}

func runStatusLabel(r importer.Run) string {
	if r.DryRun {
		return string(r.Status) + " (dry run)"
	}
	return string(r.Status)
}

func runDuration(r importer.Run) string {
	if r.FinishedAt == nil {
		return ""
	}
	return r.FinishedAt.Sub(r.CreatedAt).Round(time.Second).String()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}
