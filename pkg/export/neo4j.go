package export

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/l3aro/go-call-graph/internal/log"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 1000

// Neo4jConfig holds connection settings for a Neo4jLoader.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	// Database is the target database; empty selects the server default.
	Database  string
	BatchSize int
	Logger    log.Logger
}

type cypherRunner func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jLoader writes a Document into Neo4j as JavaClass and JavaCallable
// nodes joined by EXTENDS, DECLARES and CALLS relationships. Every write is
// a MERGE so loading the same document twice is idempotent.
type Neo4jLoader struct {
	driver    neo4j.DriverWithContext
	run       cypherRunner
	batchSize int
	logger    log.Logger
}

// NewNeo4jLoader creates a driver for cfg.URI. The connection is opened
// lazily; call Verify to check it up front.
func NewNeo4jLoader(cfg Neo4jConfig) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	var queryOpts []neo4j.ExecuteQueryConfigurationOption
	if cfg.Database != "" {
		queryOpts = append(queryOpts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}
	run := func(ctx context.Context, cypher string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer, queryOpts...)
		return err
	}

	l := newLoader(run, cfg)
	l.driver = driver
	return l, nil
}

func newLoader(run cypherRunner, cfg Neo4jConfig) *Neo4jLoader {
	l := &Neo4jLoader{run: run, batchSize: cfg.BatchSize, logger: cfg.Logger}
	if l.batchSize <= 0 {
		l.batchSize = DefaultBatchSize
	}
	if l.logger == nil {
		l.logger = log.Nop()
	}
	return l
}

// Verify checks that the server is reachable with the configured credentials.
func (l *Neo4jLoader) Verify(ctx context.Context) error {
	if l.driver == nil {
		return nil
	}
	if err := l.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("connecting to neo4j: %w", err)
	}
	return nil
}

// Close releases the underlying driver.
func (l *Neo4jLoader) Close(ctx context.Context) error {
	if l.driver == nil {
		return nil
	}
	return l.driver.Close(ctx)
}

// CleanGraph removes every node and relationship a previous load created.
func (l *Neo4jLoader) CleanGraph(ctx context.Context) error {
	l.logger.Info("cleaning existing call graph")
	queries := []string{
		"MATCH ()-[r:CALLS]->() DELETE r",
		"MATCH (n:JavaCallable) DETACH DELETE n",
		"MATCH (n:JavaClass) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := l.run(ctx, q, nil); err != nil {
			return fmt.Errorf("cleaning graph: %w", err)
		}
	}
	return nil
}

// CreateIndexes ensures the lookup indexes used by Load exist.
func (l *Neo4jLoader) CreateIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX java_class_name IF NOT EXISTS FOR (n:JavaClass) ON (n.name)",
		"CREATE INDEX java_callable_key IF NOT EXISTS FOR (n:JavaCallable) ON (n.key)",
	}
	for _, q := range indexes {
		if err := l.run(ctx, q, nil); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

const (
	mergeClasses = `UNWIND $batch AS row
MERGE (c:JavaClass {name: row.name})
SET c.kind = row.kind, c.file = row.file, c.line = row.line`

	mergeExtends = `UNWIND $batch AS row
MATCH (sub:JavaClass {name: row.sub}), (sup:JavaClass {name: row.super})
MERGE (sub)-[:EXTENDS]->(sup)`

	mergeCallables = `UNWIND $batch AS row
MERGE (n:JavaCallable {key: row.key})
SET n.name = row.name, n.kind = row.kind, n.class = row.class,
    n.file = row.file, n.line = row.line
WITH n, row
MATCH (c:JavaClass {name: row.class})
MERGE (c)-[:DECLARES]->(n)`

	mergeCalls = `UNWIND $batch AS row
MATCH (caller:JavaCallable {key: row.caller}), (callee:JavaCallable {key: row.callee})
MERGE (caller)-[r:CALLS {kind: row.kind, file: row.file, line: row.line}]->(callee)
SET r.likely = row.likely`
)

// Load upserts doc. Classes go first so that callables and supertypes can
// be attached to them.
func (l *Neo4jLoader) Load(ctx context.Context, doc *Document) error {
	classes := make([]map[string]any, 0, len(doc.Classes))
	var extends []map[string]any
	for _, c := range doc.Classes {
		classes = append(classes, map[string]any{
			"name": c.Name, "kind": c.Kind, "file": c.File, "line": c.Line,
		})
		for _, s := range c.Supers {
			extends = append(extends, map[string]any{"sub": c.Name, "super": s})
		}
	}

	callables := make([]map[string]any, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		callables = append(callables, map[string]any{
			"key": n.Key, "name": n.Name, "kind": n.Kind, "class": n.Class,
			"file": n.File, "line": n.Line,
		})
	}

	calls := make([]map[string]any, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		caller, _ := doc.Node(e.From)
		callee, _ := doc.Node(e.To)
		calls = append(calls, map[string]any{
			"caller": caller.Key, "callee": callee.Key,
			"kind": e.Kind, "likely": e.Likely, "file": e.File, "line": e.Line,
		})
	}

	steps := []struct {
		what   string
		cypher string
		rows   []map[string]any
	}{
		{"classes", mergeClasses, classes},
		{"supertypes", mergeExtends, extends},
		{"callables", mergeCallables, callables},
		{"calls", mergeCalls, calls},
	}
	for _, s := range steps {
		l.logger.Info("loading "+s.what, "count", len(s.rows))
		if err := l.batched(ctx, s.cypher, s.rows); err != nil {
			return fmt.Errorf("loading %s: %w", s.what, err)
		}
	}
	return nil
}

func (l *Neo4jLoader) batched(ctx context.Context, cypher string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+l.batchSize, len(rows))
		if err := l.run(ctx, cypher, map[string]any{"batch": rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}
