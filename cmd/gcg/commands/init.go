package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-call-graph/internal/config"
	"github.com/l3aro/go-call-graph/pkg/checker"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize gcg configuration interactively",
	Long: `Guides you through setting up gcg for a project and writes the answers
to .gcg/config.yaml under path.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot(args)
		if err != nil {
			return err
		}
		return runInit(cmd, root)
	},
}

// initAnswers holds what the init form collects. Annotation lists are
// comma separated.
type initAnswers struct {
	RuleName         string
	ContextA         string
	ContextB         string
	IncludeUncertain bool
	IncludeTests     bool
	Output           string
	Neo4jURI         string
	Neo4jUser        string
}

func defaultAnswers(cfg *config.Config) initAnswers {
	rule := checker.DefaultRules()[0]
	if len(cfg.Contexts) > 0 {
		c := cfg.Contexts[0]
		rule = checker.Rule{Name: c.Name, A: c.A, B: c.B}
	}
	return initAnswers{
		RuleName:         rule.Name,
		ContextA:         strings.Join(rule.A, ", "),
		ContextB:         strings.Join(rule.B, ", "),
		IncludeUncertain: cfg.IncludeUncertain,
		IncludeTests:     cfg.IncludeTests,
		Output:           cfg.Output,
		Neo4jURI:         cfg.Neo4j.URI,
		Neo4jUser:        cfg.Neo4j.User,
	}
}

// apply writes the answers onto cfg and validates the result.
func (a initAnswers) apply(cfg *config.Config) error {
	cfg.Contexts = []config.ContextRule{{
		Name: strings.TrimSpace(a.RuleName),
		A:    splitList(a.ContextA),
		B:    splitList(a.ContextB),
	}}
	cfg.IncludeUncertain = a.IncludeUncertain
	cfg.IncludeTests = a.IncludeTests
	cfg.Output = a.Output
	cfg.Neo4j.URI = strings.TrimSpace(a.Neo4jURI)
	cfg.Neo4j.User = strings.TrimSpace(a.Neo4jUser)
	return cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "@")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func requireList(s string) error {
	if len(splitList(s)) == 0 {
		return errors.New("enter at least one annotation")
	}
	return nil
}

func runInit(cmd *cobra.Command, root string) error {
	path := config.ProjectPath(root)
	if _, err := os.Stat(path); err == nil {
		overwrite := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s already exists", path)).
					Description("Overwrite it?").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			return nil
		}
	}

	cfg := env.cfg
	answers := defaultAnswers(cfg)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Context rule name").
				Value(&answers.RuleName).
				Validate(huh.ValidateNotEmpty()),
			huh.NewInput().
				Title("Annotations of the first context").
				Description("Comma separated, e.g. UiThread, MainThread").
				Value(&answers.ContextA).
				Validate(requireList),
			huh.NewInput().
				Title("Annotations of the second context").
				Description("Calls from one context into the other are reported").
				Value(&answers.ContextB).
				Validate(requireList),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Build non-unique override edges?").
				Description("They are printed by graph but never followed by check").
				Value(&answers.IncludeUncertain),
			huh.NewConfirm().
				Title("Analyse test sources?").
				Value(&answers.IncludeTests),
			huh.NewSelect[string]().
				Title("Default graph output format").
				Options(
					huh.NewOption("Text", "text"),
					huh.NewOption("JSON", "json"),
					huh.NewOption("MessagePack", "msgpack"),
					huh.NewOption("Graphviz DOT", "dot"),
				).
				Value(&answers.Output),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Neo4j URI for gcg export neo4j").
				Placeholder("neo4j://localhost:7687").
				Value(&answers.Neo4jURI),
			huh.NewInput().
				Title("Neo4j user").
				Placeholder("neo4j").
				Value(&answers.Neo4jUser),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	if err := answers.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s configuration written to %s\n", styles.OK.Render("✓"), path)
	fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render("Set the Neo4j password with GCG_NEO4J_PASSWORD."))
	return nil
}
