package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/observability"
)

// Overlay highlights parts of the rendered trace.
type Overlay struct {
	// CurrentState is the ID of the state owning the UI.
	CurrentState string
}

// GenerateMermaid renders a recorded trace as a Mermaid flowchart.
// Each navigation state becomes a subgraph of its events; edges follow
// the firing order, dotted when the trace moves to another state.
// Shapes:
// - Close: ((Circle))
// - Error: {{Hexagon}}
// - Merge: [[Subroutine]]
// - Default: [Rectangle]
func GenerateMermaid(events []observability.Event, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	type group struct {
		href  string
		nodes []string
	}
	var order []string
	groups := map[string]*group{}
	var ids []string
	lastOf := map[string]string{}

	for i, ev := range events {
		id := fmt.Sprintf("e%d", i)
		ids = append(ids, id)
		g, ok := groups[ev.StateID]
		if !ok {
			g = &group{href: ev.Href}
			groups[ev.StateID] = g
			order = append(order, ev.StateID)
		}
		g.nodes = append(g.nodes, node(id, ev))
		lastOf[ev.StateID] = id
	}

	for _, stateID := range order {
		g := groups[stateID]
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID("s_"+stateID), escape(g.href))
		for _, n := range g.nodes {
			sb.WriteString("        " + n + "\n")
		}
		sb.WriteString("    end\n")
	}

	for i := 1; i < len(events); i++ {
		arrow := "-->"
		if events[i].StateID != events[i-1].StateID {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", ids[i-1], arrow, ids[i])
	}

	if overlay != nil && overlay.CurrentState != "" {
		if last, ok := lastOf[overlay.CurrentState]; ok {
			sb.WriteString("\n    %% Overlay Styles\n")
			sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
			fmt.Fprintf(&sb, "    class %s current;\n", last)
		}
	}

	return sb.String()
}

func node(id string, ev observability.Event) string {
	switch ev.Kind {
	case observability.KindMerge:
		return fmt.Sprintf("%s[[\"merge %s\"]]", id, escape(ev.Detail))
	case observability.KindRunError, observability.KindListenerError:
		return fmt.Sprintf("%s{{\"%s: %s\"}}", id, ev.Stage, escape(ev.Detail))
	}
	if ev.Stage == domain.StageClose {
		return fmt.Sprintf("%s((\"%s\"))", id, ev.Stage)
	}
	if ev.Listeners > 0 {
		return fmt.Sprintf("%s[\"%s (%d)\"]", id, ev.Stage, ev.Listeners)
	}
	return fmt.Sprintf("%s[\"%s\"]", id, ev.Stage)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
