package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/l3aro/go-call-graph/pkg/analysis"
	"github.com/l3aro/go-call-graph/pkg/checker"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorError  = lipgloss.Color("#E74C3C")
	colorOK     = lipgloss.Color("#2CD7C7")
	colorMuted  = lipgloss.Color("#6C7A89")
)

var styles = struct {
	Title  lipgloss.Style
	Rule   lipgloss.Style
	Name   lipgloss.Style
	Muted  lipgloss.Style
	Error  lipgloss.Style
	OK     lipgloss.Style
	Arrow  lipgloss.Style
	Header lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Rule:   lipgloss.NewStyle().Bold(true).Foreground(colorWarn),
	Name:   lipgloss.NewStyle().Bold(true),
	Muted:  lipgloss.NewStyle().Foreground(colorMuted),
	Error:  lipgloss.NewStyle().Foreground(colorError),
	OK:     lipgloss.NewStyle().Foreground(colorOK),
	Arrow:  lipgloss.NewStyle().Foreground(colorAccent),
	Header: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent).Padding(0, 1),
}

// ViolationOutput is the JSON form of one violation.
type ViolationOutput struct {
	Rule  string      `json:"rule"`
	From  []string    `json:"from"`
	To    []string    `json:"to"`
	Chain []ChainStep `json:"chain"`
}

// ChainStep is one callable of a violating chain.
type ChainStep struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// CheckOutput represents the output of the check command
type CheckOutput struct {
	RunID      string            `json:"run_id"`
	Root       string            `json:"root"`
	Files      int               `json:"files"`
	Violations []ViolationOutput `json:"violations"`
}

func checkOutput(res *analysis.Result) CheckOutput {
	out := CheckOutput{
		RunID:      res.RunID,
		Root:       res.Root,
		Files:      len(res.Files),
		Violations: make([]ViolationOutput, 0, len(res.Violations)),
	}
	for _, v := range res.Violations {
		out.Violations = append(out.Violations, violationOutput(v))
	}
	return out
}

func violationOutput(v checker.Violation) ViolationOutput {
	vo := ViolationOutput{Rule: v.Rule, From: v.From, To: v.To}
	for _, c := range v.Chain {
		pos := c.Position()
		vo.Chain = append(vo.Chain, ChainStep{Name: c.QualifiedName(), File: pos.File, Line: pos.Line})
	}
	return vo
}

func printCheckJSON(w io.Writer, res *analysis.Result) error {
	data, err := json.MarshalIndent(checkOutput(res), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printCheck renders violations for a terminal. Styles degrade to plain
// text when w is not one.
func printCheck(w io.Writer, res *analysis.Result) {
	if len(res.Violations) == 0 {
		fmt.Fprintf(w, "%s no context violations in %d files\n",
			styles.OK.Render("✓"), len(res.Files))
		return
	}

	fmt.Fprintln(w, styles.Header.Render(styles.Title.Render(
		fmt.Sprintf("%d context violation(s) in %d files", len(res.Violations), len(res.Files)))))
	for i, v := range res.Violations {
		fmt.Fprintf(w, "\n%s %s %s %s\n",
			styles.Error.Render(fmt.Sprintf("%d.", i+1)),
			styles.Rule.Render("["+v.Rule+"]"),
			strings.Join(v.From, "|"),
			styles.Arrow.Render("→")+" "+strings.Join(v.To, "|"),
		)
		for j, c := range v.Chain {
			indent := strings.Repeat("  ", j+1)
			pos := c.Position()
			loc := ""
			if pos.File != "" {
				loc = styles.Muted.Render(fmt.Sprintf("  %s:%d", filepath.ToSlash(pos.File), pos.Line))
			}
			arrow := " "
			if j > 0 {
				arrow = styles.Arrow.Render("↳")
			}
			fmt.Fprintf(w, "%s%s %s%s\n", indent, arrow, styles.Name.Render(c.QualifiedName()), loc)
		}
	}
}
