package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/tasks"
)

// TableFormatter formats task outcomes as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatMachines formats machines as a table sorted by name.
func (f *TableFormatter) FormatMachines(machines map[string]v1alpha1.MachineInfo) (string, error) {
	if len(machines) == 0 {
		return "No appliances found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tCOMPONENT\tVERSION\tPHASE\tSTATE\tIP\tNETWORK\tAGE")
	}

	for _, name := range sortedNames(machines) {
		info := machines[name]

		age := "-"
		if !info.Meta.Created.IsZero() {
			age = formatAge(time.Since(info.Meta.Created.Time))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			name,
			dash(info.Meta.Component),
			dash(info.Meta.Version),
			dash(string(info.Phase)),
			dash(info.State),
			dash(strings.Join(info.IPs, ",")),
			dash(strings.Join(info.Networks, ",")),
			age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatImages lists one version per line.
func (f *TableFormatter) FormatImages(images map[string][]string) (string, error) {
	versions := images["image"]
	if len(versions) == 0 {
		return "No images found\n", nil
	}

	var buf bytes.Buffer
	if !f.NoHeaders {
		buf.WriteString("VERSION\n")
	}
	for _, v := range versions {
		buf.WriteString(v + "\n")
	}
	return buf.String(), nil
}

// FormatRecord formats a task record as a single row.
func (f *TableFormatter) FormatRecord(handle string, rec *tasks.Record) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "HANDLE\tTASK\tSTATUS\tTXN\tDURATION\tERROR")
	}

	duration := "-"
	if rec.Started != nil {
		end := time.Now()
		if rec.Finished != nil {
			end = rec.Finished.Time
		}
		duration = end.Sub(rec.Started.Time).Truncate(time.Second).String()
	}

	failure := "-"
	if rec.Result != nil && rec.Result.Error != nil {
		failure = *rec.Result.Error
	}

	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		handle, rec.Name, rec.Status, dash(rec.TxnID), duration, failure)

	_ = w.Flush()
	return buf.String(), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
