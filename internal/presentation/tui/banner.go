package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the pageflow banner to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text, color string
	}{
		{"                          __ _", "#818cf8"},
		{"  _ __   __ _  __ _  ___ / _| | _____      __", "#a78bfa"},
		{" | '_ \\ / _` |/ _` |/ _ \\ |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{" | |_) | (_| | (_| |  __/  _| | (_) \\ V  V /", "#e879f9"},
		{" | .__/ \\__,_|\\__, |\\___|_| |_|\\___/ \\_/\\_/", "#f472b6"},
		{" |_|          |___/", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, termenv.String(" v"+version).Faint())
	}
	fmt.Fprintln(w)
}
