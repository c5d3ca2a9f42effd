// package formatter renders provisioning run history in various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/provision/internal/models"
)

// Format names accepted by [Export].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Export renders runs in the named format.
func Export(runs []*models.Run, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return ExportToText(runs)
	case FormatCSV:
		return ExportToCSV(runs)
	case FormatMarkdown, "md":
		return ExportToMarkdown(runs)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ExportToCSV converts runs to CSV with one row per step:
// Run, Status, Exit Code, Started, Position, Step, Step Status, Duration (ms).
// Runs without recorded steps produce a single row with empty step columns.
func ExportToCSV(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Run", "Status", "Exit Code", "Started", "Position", "Step", "Step Status", "Duration (ms)"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		prefix := []string{
			strconv.Itoa(run.Sequence()),
			run.Status(),
			strconv.Itoa(run.ExitCode()),
			run.StartedAt().UTC().Format(time.RFC3339),
		}

		if len(run.Steps()) == 0 {
			if err := writer.Write(append(prefix, "", "", "", "")); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
			continue
		}

		for _, step := range run.Steps() {
			record := append(append([]string{}, prefix...),
				strconv.Itoa(step.Position),
				step.Name,
				step.Status,
				strconv.FormatInt(step.Duration.Milliseconds(), 10),
			)
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts runs to a Markdown report with a section per run
func ExportToMarkdown(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Provisioning history\n\n")
	buf.WriteString(fmt.Sprintf("**Runs**: %d\n\n", len(runs)))

	for _, run := range runs {
		buf.WriteString(fmt.Sprintf("## Run #%d: %s\n\n", run.Sequence(), run.Status()))
		buf.WriteString(fmt.Sprintf("- **Started**: %s\n", run.StartedAt().UTC().Format(time.RFC3339)))
		if run.CompletedAt() != nil {
			buf.WriteString(fmt.Sprintf("- **Duration**: %s\n", formatDuration(run.Duration())))
		}
		buf.WriteString(fmt.Sprintf("- **Exit code**: %d\n", run.ExitCode()))
		if run.FailedStep() != "" {
			buf.WriteString(fmt.Sprintf("- **Failed step**: %s\n", run.FailedStep()))
		}
		if run.ErrorMessage() != "" {
			buf.WriteString(fmt.Sprintf("- **Error**: `%s`\n", run.ErrorMessage()))
		}

		if len(run.Steps()) > 0 {
			buf.WriteString("\n| # | Step | Status | Duration |\n|---|------|--------|----------|\n")
			for _, step := range run.Steps() {
				buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n", step.Position, step.Name, step.Status, formatDuration(step.Duration)))
			}
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts runs to plain text, one header line per run followed by its steps
func ExportToText(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer

	for _, run := range runs {
		buf.WriteString(fmt.Sprintf("#%-4d %-10s exit %-3d %s", run.Sequence(), run.Status(), run.ExitCode(), run.StartedAt().Local().Format(time.DateTime)))
		if run.CompletedAt() != nil {
			buf.WriteString("  " + formatDuration(run.Duration()))
		}
		buf.WriteString("\n")

		for _, step := range run.Steps() {
			buf.WriteString(fmt.Sprintf("      %-15s %-10s %s\n", step.Name, step.Status, formatDuration(step.Duration)))
		}
		if run.ErrorMessage() != "" {
			buf.WriteString(fmt.Sprintf("      %s\n", run.ErrorMessage()))
		}
	}

	return buf.Bytes(), nil
}

// WriteExport renders runs and writes them to path, creating parent directories.
func WriteExport(runs []*models.Run, format, path string) error {
	data, err := Export(runs, format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
