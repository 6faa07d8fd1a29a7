// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/thisnaeem/metagen/internal/keypool"
	"github.com/thisnaeem/metagen/internal/scheduler"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxFailuresToShow caps how many failures are listed in full
	maxFailuresToShow = 10
)

// Printer handles formatted output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintProgress renders one progress line; intermediate updates overwrite in
// place.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(progress scheduler.Progress) {
	fmt.Fprintf(p.out, "\r[%d/%d] %s", progress.Completed, progress.Total, progress.CurrentFile)
	if progress.Completed == progress.Total {
		fmt.Fprintln(p.out)
	}
}

// PrintKeyTable outputs per-key state and usage.
func (p *Printer) PrintKeyTable(keys []keypool.Snapshot) {
	var sb strings.Builder
	for _, key := range keys {
		name := key.DisplayName
		if name == "" {
			name = keypool.MaskSecret(key.Secret)
		}
		sb.WriteString(fmt.Sprintf("%-20s %-12s %4d req", name, key.State, key.RequestCount))
		if !key.LastRequestAt.IsZero() {
			sb.WriteString("  last " + key.LastRequestAt.Format(time.Kitchen))
		}
		if key.LastError != "" {
			sb.WriteString("\n    " + key.LastError)
		}
		sb.WriteString("\n")
	}
	p.printBox(fmt.Sprintf("API Keys (%d)", len(keys)), strings.TrimRight(sb.String(), "\n"))
}

// PrintReport outputs the final run report.
func (p *Printer) PrintReport(report *scheduler.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", len(report.Succeeded)))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", len(report.Failed)))
	sb.WriteString(fmt.Sprintf("Duration:  %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Second)))
	if report.Cancelled {
		sb.WriteString("\nRun was cancelled before completion.")
	}

	if len(report.Failed) > 0 {
		sb.WriteString("\n\nFailures:")
		count := min(len(report.Failed), maxFailuresToShow)
		for i := 0; i < count; i++ {
			f := report.Failed[i]
			sb.WriteString(fmt.Sprintf("\n  • %s: %s", f.File, f.Reason))
		}
		if len(report.Failed) > count {
			sb.WriteString(fmt.Sprintf("\n  … and %d more", len(report.Failed)-count))
		}
	}

	p.printBox("Generation Report", sb.String())
	p.PrintKeyTable(report.Credentials)
}
