// Package output renders command results for the terminal: colored status
// lines, tables and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// ColorMode selects when colors are used.
type ColorMode int

const (
	// ColorAuto uses colors when stdout is a terminal and NO_COLOR is unset
	ColorAuto ColorMode = iota
	// ColorAlways forces colors on
	ColorAlways
	// ColorNever forces colors off
	ColorNever
)

// Formats accepted by --output.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseColorMode parses auto, always or never.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: must be auto, always, or never", s)
	}
}

// ResolveColors reports whether mode enables colors in this environment.
func ResolveColors(mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false
		}
		if os.Getenv("TERM") == "dumb" {
			return false
		}
		return !color.NoColor
	}
}

// Printer writes results to out and diagnostics to err.
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
	json      bool
}

// NewPrinter creates a printer on stdout and stderr.
func NewPrinter(mode ColorMode, format string) *Printer {
	return NewPrinterWithWriters(os.Stdout, os.Stderr, ResolveColors(mode), format)
}

// NewPrinterWithWriters creates a printer with custom writers.
func NewPrinterWithWriters(out, err io.Writer, useColors bool, format string) *Printer {
	return &Printer{
		out:       out,
		err:       err,
		useColors: useColors,
		json:      format == FormatJSON,
	}
}

// JSONMode reports whether results are written as JSON.
func (p *Printer) JSONMode() bool {
	return p.json
}

// Out returns the result writer.
func (p *Printer) Out() io.Writer {
	return p.out
}

// JSON writes v as indented JSON to the result writer.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result writes v as JSON in JSON mode, otherwise calls text.
func (p *Printer) Result(v any, text func()) error {
	if p.json {
		return p.JSON(v)
	}
	text()
	return nil
}

// Info prints an informational message. Suppressed in JSON mode.
func (p *Printer) Info(format string, args ...any) {
	if p.json {
		return
	}
	if p.useColors {
		color.New(color.FgCyan).Fprintf(p.out, format+"\n", args...)
	} else {
		fmt.Fprintf(p.out, format+"\n", args...)
	}
}

// Success prints a success message. Suppressed in JSON mode.
func (p *Printer) Success(format string, args ...any) {
	if p.json {
		return
	}
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
	}
}

// Warning prints a warning to the diagnostic writer.
func (p *Printer) Warning(format string, args ...any) {
	if p.useColors {
		color.New(color.FgYellow).Fprintf(p.err, "⚠ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.err, "[WARN] "+format+"\n", args...)
	}
}

// Error prints an error to the diagnostic writer.
func (p *Printer) Error(format string, args ...any) {
	if p.useColors {
		color.New(color.FgRed).Fprintf(p.err, "✗ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.err, "[ERROR] "+format+"\n", args...)
	}
}

// Print prints a plain line. Suppressed in JSON mode.
func (p *Printer) Print(format string, args ...any) {
	if p.json {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Header prints a section header. Suppressed in JSON mode.
func (p *Printer) Header(title string) {
	if p.json {
		return
	}
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		color.New(color.FgWhite).Fprintf(p.out, "%s\n", repeatChar('─', len([]rune(title))))
	} else {
		fmt.Fprintf(p.out, "\n%s\n%s\n", title, repeatChar('-', len([]rune(title))))
	}
}

// Check renders a yes/no marker.
func (p *Printer) Check(ok bool) string {
	if !p.useColors {
		if ok {
			return "yes"
		}
		return "no"
	}
	if ok {
		return color.GreenString("●")
	}
	return color.WhiteString("○")
}

// Provider colors a provider name.
func (p *Printer) Provider(name string) string {
	if !p.useColors {
		return name
	}
	switch name {
	case "gmail":
		return color.RedString(name)
	case "outlook":
		return color.BlueString(name)
	default:
		return color.New(color.Faint).Sprint(name)
	}
}

// Bold returns text in bold.
func (p *Printer) Bold(text string) string {
	if p.useColors {
		return color.New(color.Bold).Sprint(text)
	}
	return text
}

// Dim returns dimmed text.
func (p *Printer) Dim(text string) string {
	if p.useColors {
		return color.New(color.Faint).Sprint(text)
	}
	return text
}

func repeatChar(char rune, count int) string {
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
