package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vvka-141/txwrap/pkg/txwrap"
	"golang.org/x/term"
)

// Color palette - keeping it minimal and accessible.
var (
	colorSuccess = lipgloss.Color("34")  // Green
	colorWarning = lipgloss.Color("214") // Orange
	colorError   = lipgloss.Color("196") // Red
	colorMuted   = lipgloss.Color("240") // Dark gray
)

type styles struct {
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	muted   lipgloss.Style
}

// newStyles returns plain styles unless styled is set.
func newStyles(styled bool) styles {
	if !styled {
		plain := lipgloss.NewStyle()
		return styles{success: plain, failure: plain, warning: plain, muted: plain}
	}
	return styles{
		success: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
		failure: lipgloss.NewStyle().Foreground(colorError).Bold(true),
		warning: lipgloss.NewStyle().Foreground(colorWarning),
		muted:   lipgloss.NewStyle().Foreground(colorMuted),
	}
}

// isTerminal reports whether f should receive styled output.
//
// Returns false if:
//   - NO_COLOR is set (accessibility/automation indicator)
//   - CI is set (common CI/CD convention)
//   - f is not a terminal (piped or redirected)
func isTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// resultPrinter renders a Result for humans or, with asJSON, for pipelines.
type resultPrinter struct {
	out    io.Writer
	asJSON bool
	styles styles
}

type resultDocument struct {
	RunID  string             `json:"run_id"`
	Result map[string]any     `json:"result"`
	Errors []recordedErrorDoc `json:"errors,omitempty"`
}

type recordedErrorDoc struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (p resultPrinter) print(runID string, res txwrap.Result, recorded []txwrap.ErrorEntry) error {
	if p.asJSON {
		doc := resultDocument{RunID: runID, Result: res.Map(false)}
		for _, e := range recorded {
			doc.Errors = append(doc.Errors, recordedErrorDoc{Key: e.Key, Message: e.Message})
		}
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	details := fmt.Sprintf("context=%s attempt=%d", res.Context, res.Attempt)
	if res.Nested {
		details += " nested"
	}

	if res.Success() {
		fmt.Fprintf(p.out, "%s %s\n", p.styles.success.Render("✓ success"), p.styles.muted.Render(details))
		return nil
	}

	fmt.Fprintf(p.out, "%s %s\n", p.styles.failure.Render("✗ fail ("+res.FailureKind.String()+")"), p.styles.muted.Render(details))
	fmt.Fprintf(p.out, "  %s: %s\n", res.ErrorType, res.ErrorMessage)
	for _, e := range recorded {
		fmt.Fprintf(p.out, "  %s\n", p.styles.warning.Render(e.Key+": "+strings.TrimSpace(e.Message)))
	}
	return nil
}
