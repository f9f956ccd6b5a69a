// Package cli provides the command-line interface for the trade journal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool

	green, red, yellow, cyan, bold, dim *color.Color
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return newOutput(cmd.OutOrStdout(), jsonMode, !jsonMode && !color.NoColor)
}

func newOutput(w io.Writer, jsonMode, colorEnabled bool) *Output {
	o := &Output{
		writer:       w,
		jsonMode:     jsonMode,
		colorEnabled: colorEnabled,
		green:        color.New(color.FgGreen),
		red:          color.New(color.FgRed),
		yellow:       color.New(color.FgYellow),
		cyan:         color.New(color.FgCyan),
		bold:         color.New(color.Bold),
		dim:          color.New(color.Faint),
	}
	for _, c := range []*color.Color{o.green, o.red, o.yellow, o.cyan, o.bold, o.dim} {
		if colorEnabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return o
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.line(o.green, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.line(o.red, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.line(o.yellow, format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.line(o.cyan, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.line(o.bold, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.line(o.dim, format, args...)
}

func (o *Output) line(c *color.Color, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, c.Sprintf(format, args...))
}

// Green returns green colored text.
func (o *Output) Green(text string) string { return o.green.Sprint(text) }

// Red returns red colored text.
func (o *Output) Red(text string) string { return o.red.Sprint(text) }

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string { return o.yellow.Sprint(text) }

// DimText returns dimmed text.
func (o *Output) DimText(text string) string { return o.dim.Sprint(text) }

// FormatPnL formats P&L with sign and color.
func (o *Output) FormatPnL(pnl decimal.Decimal) string {
	return o.signColor(pnl, FormatPnL(pnl))
}

// FormatOptionalPnL formats a P&L that may be unavailable.
func (o *Output) FormatOptionalPnL(pnl *decimal.Decimal) string {
	if pnl == nil {
		return o.DimText("-")
	}
	return o.FormatPnL(*pnl)
}

// FormatPercent formats a percentage with sign and color.
func (o *Output) FormatPercent(pct *decimal.Decimal) string {
	if pct == nil {
		return o.DimText("-")
	}
	return o.signColor(*pct, FormatPercent(*pct))
}

func (o *Output) signColor(d decimal.Decimal, text string) string {
	switch d.Sign() {
	case 1:
		return o.Green(text)
	case -1:
		return o.Red(text)
	}
	return text
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		output:  output,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	t.printRow(t.headers, widths, true)
	t.printSeparator(widths)
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	var parts []string
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		padded := cell + strings.Repeat(" ", max(widths[i]-visibleLen(cell), 0))
		if isHeader {
			padded = t.output.bold.Sprint(padded)
		}
		parts = append(parts, padded)
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

func (t *Table) printSeparator(widths []int) {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("─", w)
	}
	t.output.Println(t.output.DimText(strings.Join(parts, "──")))
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visibleLen is the printed width of s, ignoring color escapes.
func visibleLen(s string) int {
	return len([]rune(ansiPattern.ReplaceAllString(s, "")))
}
