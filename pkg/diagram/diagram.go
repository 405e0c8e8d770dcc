// Package diagram generates visual diagrams from pipeline requests.
// Supports Mermaid flowchart and ASCII formats.
package diagram

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/stepwise/pkg/kernel/eval"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Generate produces a diagram string from a pipeline request. Name labels
// the start node.
func Generate(req *schema.PipelineRequest, name string, format Format) (string, error) {
	if req == nil {
		return "", fmt.Errorf("nil pipeline")
	}
	if name == "" {
		name = "Pipeline"
	}
	steps := analyze(req)
	switch format {
	case FormatMermaid:
		return generateMermaid(name, steps), nil
	case FormatASCII:
		return generateASCII(name, steps), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

func generateMermaid(name string, steps []diagramStep) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString(fmt.Sprintf("    START([%q])\n", escMermaid(name)))
	if len(steps) == 0 {
		return b.String()
	}

	prev := "START"
	for i, s := range steps {
		next := "END"
		if i < len(steps)-1 {
			next = steps[i+1].id
		}

		b.WriteString("    " + nodeDefinition(s) + "\n")
		if s.when != "" {
			guard := s.id + "_when"
			b.WriteString(fmt.Sprintf("    %s{%q}\n", guard, escMermaid(truncate(s.when, 40))))
			b.WriteString(fmt.Sprintf("    %s --> %s\n", prev, guard))
			b.WriteString(fmt.Sprintf("    %s -->|\"yes\"| %s\n", guard, s.id))
			b.WriteString(fmt.Sprintf("    %s -->|\"skip\"| %s\n", guard, next))
		} else {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", prev, s.id))
		}
		prev = s.id
	}
	b.WriteString(fmt.Sprintf("    %s --> END([done])\n", prev))

	// Data flow
	for _, s := range steps {
		for _, d := range s.deps {
			if d.from < 0 {
				continue
			}
			b.WriteString(fmt.Sprintf("    %s -.->|%q| %s\n", steps[d.from].id, escMermaid(d.label), s.id))
		}
	}

	// Style conditional steps
	for _, s := range steps {
		if s.when != "" {
			b.WriteString(fmt.Sprintf("    style %s fill:#1a3a4a,stroke:#0af\n", s.id))
		}
	}

	return b.String()
}

func nodeDefinition(s diagramStep) string {
	label := fmt.Sprintf("%d. %s", s.index, s.command)
	if s.alias != "" {
		label += "<br/>→ " + s.alias
	}
	return fmt.Sprintf(`%s["%s"]`, s.id, escMermaid(label))
}

// --- ASCII ---

func generateASCII(name string, steps []diagramStep) string {
	var b strings.Builder
	if len(steps) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	// Compute uniform box width so every box and connector aligns.
	const indent = 8
	boxWidth := computeUniformBoxWidth(steps, name)
	connCol := indent + 1 + boxWidth/2 // +1 accounts for the └/┌ border character
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)

	// Header, same width as body boxes, name centered.
	headerText := centerPad(name, boxWidth)
	mid := boxWidth / 2
	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + headerText + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")
	b.WriteString(connPad + "│\n")

	for i, s := range steps {
		writeASCIIStep(&b, s, indent, boxWidth)
		if i < len(steps)-1 {
			b.WriteString(connPad + "│\n")
		}
	}
	return b.String()
}

// boxLines returns the interior lines of a step box.
func boxLines(s diagramStep) []string {
	icon := "○"
	if s.when != "" {
		icon = "◇"
	}
	lines := []string{fmt.Sprintf(" %s %d. %s ", icon, s.index, s.command)}
	if s.when != "" {
		lines = append(lines, " ? "+truncate(s.when, 40)+" ")
	}
	for _, d := range s.deps {
		lines = append(lines, " ← "+d.raw+" ")
	}
	if s.alias != "" {
		lines = append(lines, " → "+s.alias+" ")
	}
	return lines
}

// computeUniformBoxWidth returns the widest interior width needed
// across all steps and the header name.
func computeUniformBoxWidth(steps []diagramStep, name string) int {
	w := 22
	if nameWidth := runewidth.StringWidth(name) + 4; nameWidth > w {
		w = nameWidth
	}
	for _, s := range steps {
		for _, l := range boxLines(s) {
			if lw := runewidth.StringWidth(l); lw > w {
				w = lw
			}
		}
	}
	return w
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	right := total - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

func writeASCIIStep(b *strings.Builder, s diagramStep, indent, boxWidth int) {
	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	b.WriteString(pad + "┌" + strings.Repeat("─", boxWidth) + "┐\n")
	for _, l := range boxLines(s) {
		b.WriteString(pad + "│" + l + strings.Repeat(" ", boxWidth-runewidth.StringWidth(l)) + "│\n")
	}
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

// --- analysis ---

type diagramStep struct {
	id      string
	index   int
	command string
	alias   string
	when    string
	deps    []dependency
}

// dependency is a reference from a step's input or guard to an earlier
// step. from is -1 when the reference names no earlier step.
type dependency struct {
	from  int
	label string
	raw   string
}

func analyze(req *schema.PipelineRequest) []diagramStep {
	aliases := make(map[string]int)
	steps := make([]diagramStep, 0, len(req.Steps))
	for i, st := range req.Steps {
		ds := diagramStep{
			id:      "s" + strconv.Itoa(i),
			index:   i,
			command: st.Command,
			alias:   st.As,
			when:    describeWhen(st.When),
		}

		refs := eval.References(eval.Parse(st.Input))
		if len(st.When) > 0 {
			refs = append(refs, eval.References(eval.Parse(st.When))...)
		}
		seen := make(map[string]bool)
		for _, ref := range refs {
			if seen[ref.Raw] {
				continue
			}
			seen[ref.Raw] = true
			ds.deps = append(ds.deps, resolveDependency(ref, i, aliases))
		}
		sort.SliceStable(ds.deps, func(a, b int) bool { return ds.deps[a].raw < ds.deps[b].raw })

		if st.As != "" {
			aliases[st.As] = i
		}
		steps = append(steps, ds)
	}
	return steps
}

func resolveDependency(ref eval.Reference, index int, aliases map[string]int) dependency {
	d := dependency{from: -1, raw: ref.Raw, label: strings.Join(ref.Path, ".")}
	switch ref.Root {
	case eval.RootPrev:
		d.from = index - 1
		if d.label == "" {
			d.label = "$prev"
		}
	case eval.RootSteps:
		if from, ok := aliases[ref.Alias]; ok {
			d.from = from
		}
		if d.label == "" {
			d.label = ref.Alias
		}
	}
	return d
}

var opSymbols = map[eval.Operator]string{
	eval.OpEq:  "==",
	eval.OpNe:  "!=",
	eval.OpGt:  ">",
	eval.OpGte: ">=",
	eval.OpLt:  "<",
	eval.OpLte: "<=",
}

// describeWhen renders a when predicate as "left op right".
func describeWhen(when map[string]any) string {
	if len(when) == 0 {
		return ""
	}
	cond, err := eval.ParseCondition(when)
	if err != nil {
		return "invalid when"
	}
	return describeNode(cond.Left) + " " + opSymbols[cond.Op] + " " + describeNode(cond.Right)
}

func describeNode(n eval.Node) string {
	switch v := n.(type) {
	case eval.Reference:
		return v.Raw
	case eval.Literal:
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return fmt.Sprint(v.Value)
		}
		return string(raw)
	default:
		return "{…}"
	}
}

// --- string helpers ---

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "...")
}
