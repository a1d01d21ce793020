// Package javasrc builds a program.Program from Java source files.
//
// Files are parsed in parallel with tree-sitter. Declarations, type
// resolution and body lowering then run sequentially over the parsed trees:
//
//  1. declare every class, nested class and enum with its members
//  2. resolve supertypes and declared variable types
//  3. lower method, constructor and field initializer bodies into program
//     statements, resolving callees by receiver type, name and arity
//
// Anonymous classes and lambdas are created during the third pass.
package javasrc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-call-graph/internal/log"
	"github.com/l3aro/go-call-graph/pkg/program"
)

// ErrNoSources is returned when there is nothing to load.
var ErrNoSources = errors.New("no java sources")

// javaParserPool is a pool of reusable tree-sitter parsers for Java.
var javaParserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(java.GetLanguage())
		return parser
	},
}

// Source is one compilation unit.
type Source struct {
	Path    string
	Content []byte
}

// Stats summarizes a load.
type Stats struct {
	Files        int
	SyntaxErrors int
	Classes      int
	Anonymous    int
	Lambdas      int
	Unresolved   int
}

// Loader turns Java sources into a program model.
type Loader struct {
	logger  log.Logger
	workers int
	stats   Stats
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for syntax error warnings.
func WithLogger(l log.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.workers = n
		}
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: log.Nop(), workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stats reports counters of the last load.
func (l *Loader) Stats() Stats {
	return l.stats
}

// LoadFiles reads and loads the given paths.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) (*program.Program, error) {
	if len(paths) == 0 {
		return nil, ErrNoSources
	}

	sources := make([]Source, len(paths))
	for i, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", path, err)
		}
		sources[i] = Source{Path: path, Content: content}
	}
	return l.Load(ctx, sources)
}

// Load parses sources and builds a resolved program. Files with syntax
// errors are kept; tree-sitter recovers and the well-formed parts are used.
func (l *Loader) Load(ctx context.Context, sources []Source) (*program.Program, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	l.stats = Stats{Files: len(sources)}

	units, err := l.parseAll(ctx, sources)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, u := range units {
			u.tree.Close()
		}
	}()

	for _, u := range units {
		if u.root.HasError() {
			l.stats.SyntaxErrors++
			l.logger.Warn("syntax errors in file", "file", u.path)
		}
	}

	b := newBuilder(units)
	b.declare()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.resolve()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.lower(ctx); err != nil {
		return nil, err
	}

	l.stats.Classes = len(b.prog.Classes())
	l.stats.Anonymous = b.anonymous
	l.stats.Lambdas = b.lambdas
	l.stats.Unresolved = b.unresolved
	l.logger.Debug("loaded java sources",
		"files", l.stats.Files,
		"classes", l.stats.Classes,
		"lambdas", l.stats.Lambdas,
		"unresolved_calls", l.stats.Unresolved,
	)
	return b.prog, nil
}

// unit is a parsed compilation unit.
type unit struct {
	path    string
	src     []byte
	tree    *sitter.Tree
	root    *sitter.Node
	pkg     string
	imports []string
	// wildcard holds on-demand imports without the trailing ".*".
	wildcard []string
}

func (l *Loader) parseAll(ctx context.Context, sources []Source) ([]*unit, error) {
	units := make([]*unit, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, s := range sources {
		i, s := i, s
		g.Go(func() error {
			u, err := parse(ctx, s)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, u := range units {
			if u != nil {
				u.tree.Close()
			}
		}
		return nil, err
	}
	return units, nil
}

func parse(ctx context.Context, s Source) (*unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parser := javaParserPool.Get().(*sitter.Parser)
	defer javaParserPool.Put(parser)

	// Pooled parsers must never be cancelled; an aborted parse resumes on reuse.
	tree := parser.Parse(nil, s.Content)
	if tree == nil {
		return nil, fmt.Errorf("parsing file %s failed", s.Path)
	}
	return &unit{path: s.Path, src: s.Content, tree: tree, root: tree.RootNode()}, nil
}

func (u *unit) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(u.src)
}

func (u *unit) pos(n *sitter.Node) program.Position {
	if n == nil {
		return program.Position{File: u.path}
	}
	return program.Position{File: u.path, Line: int(n.StartPoint().Row) + 1}
}
