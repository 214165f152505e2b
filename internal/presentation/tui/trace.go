package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/pageflow/pkg/observability"
	"golang.org/x/term"
)

// TraceMarkdown renders recorded events as a markdown table.
func TraceMarkdown(title string, events []observability.Event) string {
	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "## %s\n\n", title)
	}
	if len(events) == 0 {
		sb.WriteString("_no stages fired_\n")
		return sb.String()
	}
	sb.WriteString("| # | href | event | listeners | duration | detail |\n")
	sb.WriteString("|---|------|-------|-----------|----------|--------|\n")
	for i, ev := range events {
		what := string(ev.Stage)
		if ev.Kind != observability.KindStage {
			what = string(ev.Kind)
			if ev.Stage != "" {
				what += " (" + string(ev.Stage) + ")"
			}
		}
		fmt.Fprintf(&sb, "| %d | `%s` | %s | %d | %s | %s |\n",
			i+1, ev.Href, what, ev.Listeners, ev.Duration.Round(time.Microsecond), cell(ev.Detail))
	}
	return sb.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// TracePlain renders recorded events one per line.
func TracePlain(events []observability.Event) string {
	var sb strings.Builder
	for _, ev := range events {
		switch ev.Kind {
		case observability.KindStage:
			fmt.Fprintf(&sb, "%-6s %s\n", ev.Stage, ev.Href)
		default:
			fmt.Fprintf(&sb, "%-6s %s %s\n", ev.Kind, ev.Href, ev.Detail)
		}
	}
	return sb.String()
}

// Printer writes traces, styled with glamour when out is a terminal.
type Printer struct {
	out    io.Writer
	render func(string) (string, error)
}

// NewPrinter creates a Printer for out.
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{out: out}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		width, _, err := term.GetSize(int(f.Fd()))
		if err != nil {
			width = 0
		}
		if r, err := NewRenderer(width); err == nil {
			p.render = r
		}
	}
	return p
}

// Styled reports whether output goes through the markdown renderer.
func (p *Printer) Styled() bool {
	return p.render != nil
}

// Trace prints one navigation trace.
func (p *Printer) Trace(title string, events []observability.Event) error {
	if p.render == nil {
		if title != "" {
			if _, err := fmt.Fprintf(p.out, "# %s\n", title); err != nil {
				return err
			}
		}
		_, err := io.WriteString(p.out, TracePlain(events))
		return err
	}
	out, err := p.render(TraceMarkdown(title, events))
	if err != nil {
		return err
	}
	_, err = io.WriteString(p.out, out)
	return err
}
