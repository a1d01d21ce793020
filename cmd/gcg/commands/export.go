package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-call-graph/pkg/analysis"
	"github.com/l3aro/go-call-graph/pkg/export"
)

// exportCmd groups the store-specific export commands
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Load the call graph into an external store",
}

// neo4jCmd represents the export neo4j command
var neo4jCmd = &cobra.Command{
	Use:   "neo4j [path]",
	Short: "Load the call graph into Neo4j",
	Long: `Builds the call graph and upserts it into Neo4j as JavaClass and
JavaCallable nodes connected by EXTENDS, DECLARES and CALLS relationships.
CALLS carries the edge kind and whether it is likely.

Connection settings default to the neo4j section of the config and the
GCG_NEO4J_* environment variables.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: runExportNeo4j,
}

func init() {
	neo4jCmd.Flags().String("uri", "", "Bolt URI (default from config)")
	neo4jCmd.Flags().String("user", "", "User name (default from config)")
	neo4jCmd.Flags().String("password", "", "Password (default from config)")
	neo4jCmd.Flags().String("database", "", "Database name (default: server default)")
	neo4jCmd.Flags().Bool("clean", false, "Remove previously loaded call graph data first")
	neo4jCmd.Flags().Bool("uncertain", false, "Include non-unique override edges")
	neo4jCmd.Flags().Int("batch-size", export.DefaultBatchSize, "Rows per UNWIND statement")
	exportCmd.AddCommand(neo4jCmd)
}

func runExportNeo4j(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}

	conn := env.cfg.Neo4j
	if v, _ := cmd.Flags().GetString("uri"); v != "" {
		conn.URI = v
	}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		conn.User = v
	}
	if v, _ := cmd.Flags().GetString("password"); v != "" {
		conn.Password = v
	}
	if v, _ := cmd.Flags().GetString("database"); v != "" {
		conn.Database = v
	}
	clean, _ := cmd.Flags().GetBool("clean")
	uncertain, _ := cmd.Flags().GetBool("uncertain")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	ctx := cmd.Context()
	loader, err := export.NewNeo4jLoader(export.Neo4jConfig{
		URI:       conn.URI,
		User:      conn.User,
		Password:  conn.Password,
		Database:  conn.Database,
		BatchSize: batchSize,
		Logger:    env.logger,
	})
	if err != nil {
		return err
	}
	defer loader.Close(ctx)

	if err := loader.Verify(ctx); err != nil {
		return err
	}

	var res *analysis.Result
	err = withSpinner("Building call graph...", func() error {
		res, err = newAnalyzer(root, uncertain).Graph(ctx)
		return err
	})
	if err != nil {
		return err
	}
	doc := export.FromGraph(res.Graph, export.Options{RunID: res.RunID})

	if clean {
		if err := loader.CleanGraph(ctx); err != nil {
			return err
		}
	}
	if err := loader.CreateIndexes(ctx); err != nil {
		return err
	}
	if err := loader.Load(ctx, doc); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s loaded %d callables and %d calls into %s\n",
		styles.OK.Render("✓"), len(doc.Nodes), len(doc.Edges), conn.URI)
	return nil
}
