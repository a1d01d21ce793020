// Package analysis runs one end-to-end invocation: scan a project for Java
// sources, load them into a program model, build the call graph and
// optionally check it for context violations. Every run gets a fresh id,
// a trace span per phase and its counters recorded in metrics.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/l3aro/go-call-graph/internal/config"
	"github.com/l3aro/go-call-graph/internal/log"
	"github.com/l3aro/go-call-graph/internal/metrics"
	"github.com/l3aro/go-call-graph/internal/scanner"
	"github.com/l3aro/go-call-graph/pkg/callgraph"
	"github.com/l3aro/go-call-graph/pkg/checker"
	"github.com/l3aro/go-call-graph/pkg/javasrc"
	"github.com/l3aro/go-call-graph/pkg/program"
)

var tracer = otel.Tracer("gcg.analysis")

// ErrNoSources is returned when the project has no Java files to analyse.
var ErrNoSources = javasrc.ErrNoSources

// Options configures an Analyzer.
type Options struct {
	// Root is the project directory.
	Root  string
	Scan  scanner.Options
	Build callgraph.Options
	// Rules default to checker.DefaultRules when empty.
	Rules []checker.Rule
	// Workers bounds parallel parsing. Zero uses every CPU.
	Workers int
	Logger  log.Logger
	// Metrics receives the counters of every run. Nil disables them.
	Metrics *metrics.Metrics
}

// OptionsFromConfig maps a loaded configuration onto analysis options.
func OptionsFromConfig(cfg *config.Config, root string) Options {
	scan := scanner.DefaultOptions()
	scan.IncludeTests = cfg.IncludeTests
	scan.Exclude = append(scan.Exclude, cfg.Exclude...)

	rules := make([]checker.Rule, 0, len(cfg.Contexts))
	for _, c := range cfg.Contexts {
		rules = append(rules, checker.Rule{Name: c.Name, A: c.A, B: c.B})
	}

	return Options{
		Root: root,
		Scan: scan,
		Build: callgraph.Options{
			IncludeUncertain: cfg.IncludeUncertain,
			StrictTypes:      cfg.StrictTypes,
		},
		Rules: rules,
	}
}

// Result is everything one run produced.
type Result struct {
	RunID      string
	Root       string
	Files      []scanner.FileInfo
	Program    *program.Program
	Graph      *callgraph.Graph
	Violations []checker.Violation
	Load       javasrc.Stats
	Build      callgraph.BuildStats
	Duration   time.Duration
}

// Analyzer runs analyses over one project. Each run starts from scratch;
// nothing is reused between runs.
type Analyzer struct {
	opts   Options
	logger log.Logger
}

// New creates an analyzer.
func New(opts Options) *Analyzer {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Build.Logger == nil {
		opts.Build.Logger = opts.Logger
	}
	return &Analyzer{opts: opts, logger: opts.Logger}
}

// Sources lists the absolute paths of the project's Java files.
func (a *Analyzer) Sources() ([]string, error) {
	files, err := scanner.New(a.opts.Scan).Scan(a.opts.Root)
	if err != nil {
		return nil, err
	}
	return scanner.Paths(files), nil
}

// SkipDir reports directories the scanner never descends into.
func (a *Analyzer) SkipDir(name string) bool {
	for _, d := range a.opts.Scan.DefaultExcludes {
		if d == name {
			return true
		}
	}
	return false
}

// Graph scans, loads and builds the call graph.
func (a *Analyzer) Graph(ctx context.Context) (*Result, error) {
	return a.run(ctx, false)
}

// Check builds the call graph and reports context violations.
func (a *Analyzer) Check(ctx context.Context) (*Result, error) {
	return a.run(ctx, true)
}

func (a *Analyzer) run(ctx context.Context, check bool) (*Result, error) {
	started := time.Now()
	res := &Result{RunID: uuid.NewString(), Root: a.opts.Root}
	logger := a.logger

	ctx, span := tracer.Start(ctx, "Analyzer.Run",
		trace.WithAttributes(
			attribute.String("gcg.run_id", res.RunID),
			attribute.String("root", a.opts.Root),
			attribute.Bool("check", check),
		),
	)
	defer span.End()

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		logger.Debug("run failed", "run_id", res.RunID, "error", err)
		return nil, err
	}

	logger.Debug("starting run", "run_id", res.RunID, "root", a.opts.Root)

	if err := a.scan(ctx, res); err != nil {
		return fail(err)
	}
	if err := a.load(ctx, res); err != nil {
		return fail(err)
	}
	if err := a.build(ctx, res); err != nil {
		return fail(err)
	}
	if check {
		if err := a.check(ctx, res); err != nil {
			return fail(err)
		}
	}

	res.Duration = time.Since(started)
	if m := a.opts.Metrics; m != nil {
		m.ObservePhase("total", started)
		m.LastRun.SetToCurrentTime()
	}
	span.SetAttributes(attribute.Int("violations.count", len(res.Violations)))
	logger.Info("analysis finished",
		"run_id", res.RunID,
		"files", len(res.Files),
		"classes", res.Load.Classes,
		"violations", len(res.Violations),
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

func (a *Analyzer) scan(ctx context.Context, res *Result) error {
	start := time.Now()
	_, span := tracer.Start(ctx, "Analyzer.Scan")
	defer span.End()

	files, err := scanner.New(a.opts.Scan).Scan(a.opts.Root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", a.opts.Root, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("scanning %s: %w", a.opts.Root, ErrNoSources)
	}
	res.Files = files
	span.SetAttributes(attribute.Int("files.count", len(files)))
	a.observe("scan", start)
	return nil
}

func (a *Analyzer) load(ctx context.Context, res *Result) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Analyzer.Load")
	defer span.End()

	sources := make([]javasrc.Source, len(res.Files))
	for i, f := range res.Files {
		content, err := os.ReadFile(f.FullPath)
		if err != nil {
			return fmt.Errorf("reading file %s: %w", f.Path, err)
		}
		sources[i] = javasrc.Source{Path: f.Path, Content: content}
	}

	opts := []javasrc.Option{javasrc.WithLogger(a.logger)}
	if a.opts.Workers > 0 {
		opts = append(opts, javasrc.WithWorkers(a.opts.Workers))
	}
	loader := javasrc.NewLoader(opts...)
	prog, err := loader.Load(ctx, sources)
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}
	res.Program = prog
	res.Load = loader.Stats()

	span.SetAttributes(
		attribute.Int("classes.count", res.Load.Classes),
		attribute.Int("syntax_errors.count", res.Load.SyntaxErrors),
	)
	if m := a.opts.Metrics; m != nil {
		m.FilesParsed.WithLabelValues("ok").Add(float64(res.Load.Files - res.Load.SyntaxErrors))
		m.FilesParsed.WithLabelValues("error").Add(float64(res.Load.SyntaxErrors))
		m.SkippedCalls.WithLabelValues("unresolved_source").Add(float64(res.Load.Unresolved))
	}
	a.observe("load", start)
	return nil
}

func (a *Analyzer) build(ctx context.Context, res *Result) error {
	start := time.Now()
	b := callgraph.NewBuilder(res.Program, a.opts.Build)
	g, err := b.Build(ctx)
	if err != nil {
		return fmt.Errorf("building call graph: %w", err)
	}
	res.Graph = g
	res.Build = b.Stats()

	if m := a.opts.Metrics; m != nil {
		st := g.Stats()
		for kind, n := range st.ByKind {
			m.Edges.WithLabelValues(kind.String()).Add(float64(n))
		}
		m.Nodes.Set(float64(st.Nodes))
		m.SkippedCalls.WithLabelValues("unresolved_callee").Add(float64(res.Build.UnresolvedCallee))
		m.SkippedCalls.WithLabelValues("no_enclosing").Add(float64(res.Build.NoEnclosing))
	}
	a.observe("build", start)
	return nil
}

func (a *Analyzer) check(ctx context.Context, res *Result) error {
	start := time.Now()
	c := checker.New(res.Program, checker.Options{
		Rules:  a.opts.Rules,
		Build:  a.opts.Build,
		Logger: a.logger,
	})
	violations, err := c.CheckGraph(ctx, res.Graph)
	if err != nil {
		return fmt.Errorf("checking call graph: %w", err)
	}
	res.Violations = violations

	if m := a.opts.Metrics; m != nil {
		for _, v := range violations {
			m.Violations.WithLabelValues(v.Rule).Inc()
		}
	}
	a.observe("check", start)
	return nil
}

func (a *Analyzer) observe(phase string, start time.Time) {
	if a.opts.Metrics != nil {
		a.opts.Metrics.ObservePhase(phase, start)
	}
}

// IsNoSources reports whether err means the project had nothing to analyse.
func IsNoSources(err error) bool {
	return errors.Is(err, ErrNoSources)
}
