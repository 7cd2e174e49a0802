package armorch

import (
	"fmt"
	"strings"
)

type GraphNode struct {
	ID    ID     `json:"id"`
	State string `json:"state,omitempty"`
}

// GraphEdge means "From depends on To".
type GraphEdge struct {
	From ID `json:"from"`
	To   ID `json:"to"`
}

type Graph struct {
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	TopoOrder []ID        `json:"topoOrder"`
}

func (g Graph) clone() Graph {
	cloned := Graph{
		Nodes:     make([]GraphNode, len(g.Nodes)),
		Edges:     make([]GraphEdge, len(g.Edges)),
		TopoOrder: make([]ID, len(g.TopoOrder)),
	}
	copy(cloned.Nodes, g.Nodes)
	copy(cloned.Edges, g.Edges)
	copy(cloned.TopoOrder, g.TopoOrder)
	return cloned
}

// Annotate returns a copy of g with the state of every node reported in r.
func (g Graph) Annotate(r *DeploymentReport) Graph {
	annotated := g.clone()
	if r == nil {
		return annotated
	}
	for i, n := range annotated.Nodes {
		if o, ok := r.OutcomeOf(n.ID); ok {
			annotated.Nodes[i].State = o.State.String()
		}
	}
	return annotated
}

// DOT exports Graphviz DOT text.
func (g Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph armorch {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.ID.String()] = alias
		label := escapeDOT(n.ID.String())
		if n.State != "" {
			label = label + "\\n(" + escapeDOT(n.State) + ")"
		}
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\"%s];\n", alias, label, dotStyle(n.State)))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From.String()]
		to, okTo := aliases[e.To.String()]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -> %s;\n", from, to))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.ID.String()] = alias
		label := escapeMermaid(n.ID.String())
		if n.State != "" {
			label = label + "<br/>(" + escapeMermaid(n.State) + ")"
		}
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From.String()]
		to, okTo := aliases[e.To.String()]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
	}
	return b.String()
}

func dotStyle(state string) string {
	switch state {
	case StateFailed.String():
		return ", color=red"
	case StateSkipped.String():
		return ", style=dashed"
	default:
		return ""
	}
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
