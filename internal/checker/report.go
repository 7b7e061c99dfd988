package checker

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	separator = strings.Repeat("=", 80)

	headerColor  = color.New(color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	passColor    = color.New(color.FgGreen, color.Bold)
)

// Report collects every message produced by a run, in order.
type Report struct {
	Fixes    []string
	Warnings []string
	Errors   []string
}

// Failed reports whether the run found any error. Warnings and fixes never
// fail a run.
func (r *Report) Failed() bool {
	return len(r.Errors) > 0
}

// Merge appends other's messages to r.
func (r *Report) Merge(other Report) {
	r.Fixes = append(r.Fixes, other.Fixes...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Print writes the grouped summary: applied fixes and warnings when there
// are any, then the errors or a pass line.
func (r *Report) Print(w io.Writer) {
	if len(r.Fixes) > 0 {
		printSection(w, headerColor, "FIXES APPLIED:", r.Fixes)
	}
	if len(r.Warnings) > 0 {
		printSection(w, warningColor, "WARNINGS:", r.Warnings)
	}
	if r.Failed() {
		printSection(w, failColor, "FAILED - Errors found:", r.Errors)
		return
	}
	printSection(w, passColor, "PASSED - All checks successful", nil)
}

func printSection(w io.Writer, c *color.Color, title string, lines []string) {
	_, _ = fmt.Fprintf(w, "\n%s\n", separator)
	_, _ = c.Fprintln(w, title)
	for _, line := range lines {
		_, _ = fmt.Fprintf(w, "  %s\n", line)
	}
}
