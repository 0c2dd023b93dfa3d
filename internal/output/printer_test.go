package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseColorMode(t *testing.T) {
	tests := []struct {
		input string
		want  ColorMode
	}{
		{"", ColorAuto},
		{"auto", ColorAuto},
		{"always", ColorAlways},
		{"never", ColorNever},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseColorMode(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseColorMode(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseColorMode("rainbow"); err == nil {
		t.Error("expected error for invalid color mode")
	}
}

func TestResolveColors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if !ResolveColors(ColorAlways) {
		t.Error("ColorAlways should win over NO_COLOR")
	}
	if ResolveColors(ColorAuto) {
		t.Error("NO_COLOR should disable auto colors")
	}
	if ResolveColors(ColorNever) {
		t.Error("ColorNever should disable colors")
	}
}

func newTestPrinter(format string) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinterWithWriters(&out, &errOut, false, format), &out, &errOut
}

func TestPrinter_PlainMessages(t *testing.T) {
	p, out, errOut := newTestPrinter(FormatText)

	p.Success("cached %d summaries", 3)
	p.Info("hello")
	p.Warning("careful")
	p.Error("broken")

	if got := out.String(); got != "[OK] cached 3 summaries\nhello\n" {
		t.Errorf("unexpected stdout %q", got)
	}
	if got := errOut.String(); got != "[WARN] careful\n[ERROR] broken\n" {
		t.Errorf("unexpected stderr %q", got)
	}
}

func TestPrinter_JSONModeSilencesText(t *testing.T) {
	p, out, errOut := newTestPrinter(FormatJSON)

	p.Success("ignored")
	p.Header("ignored")
	if err := p.Result(map[string]int{"count": 2}, func() { t.Error("text callback called in JSON mode") }); err != nil {
		t.Fatalf("Result: %v", err)
	}
	p.Error("still shown")

	if got := strings.TrimSpace(out.String()); got != "{\n  \"count\": 2\n}" {
		t.Errorf("unexpected JSON %q", got)
	}
	if !strings.Contains(errOut.String(), "still shown") {
		t.Error("errors must be printed in JSON mode")
	}
}

func TestPrinter_Header(t *testing.T) {
	p, out, _ := newTestPrinter(FormatText)
	p.Header("Digests")
	if got := out.String(); got != "\nDigests\n-------\n" {
		t.Errorf("unexpected header %q", got)
	}
}

func TestPrinter_MarkersWithoutColor(t *testing.T) {
	p, _, _ := newTestPrinter(FormatText)
	if p.Check(true) != "yes" || p.Check(false) != "no" {
		t.Error("unexpected check markers")
	}
	if p.Provider("gmail") != "gmail" {
		t.Error("provider should be unchanged without colors")
	}
	if p.Bold("x") != "x" || p.Dim("x") != "x" {
		t.Error("styles should be no-ops without colors")
	}
}

func TestTable_Render(t *testing.T) {
	p, out, _ := newTestPrinter(FormatText)
	table := p.NewTable("Date", "Summaries")
	table.AddRow("2024-05-01", "3")
	table.AddRow("2024-04-30", "1")

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if err := table.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"DATE", "SUMMARIES", "2024-05-01", "2024-04-30"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("table output missing %q:\n%s", want, out.String())
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 8, "this is…"},
		{"äöüäöü", 4, "äöü…"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
