package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-call-graph/internal/log"
	"github.com/l3aro/go-call-graph/pkg/analysis"
	"github.com/l3aro/go-call-graph/pkg/export"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Build the call graph of a Java project",
	Long: `Parses every Java source under path and prints the call graph. Each
edge is classified as direct, unique_override, type_evidenced or
non_unique_override. The last kind is only computed with --uncertain.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().Bool("uncertain", false, "Include non-unique override edges")
	graphCmd.Flags().Bool("likely", false, "Only print likely edges")
	graphCmd.Flags().StringP("format", "f", "", "Output format: text, json, msgpack or dot (default from config)")
	graphCmd.Flags().StringP("out", "o", "", "Write to this file instead of stdout")
}

func runGraph(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}
	uncertain, _ := cmd.Flags().GetBool("uncertain")
	likely, _ := cmd.Flags().GetBool("likely")
	formatName, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("out")

	if formatName == "" {
		formatName = env.cfg.Output
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if format.Binary() && outPath == "" && log.IsTTY() {
		return fmt.Errorf("refusing to write %s to a terminal, use --out", format)
	}

	var res *analysis.Result
	err = withSpinner("Building call graph...", func() error {
		res, err = newAnalyzer(root, uncertain).Graph(cmd.Context())
		return err
	})
	if err != nil {
		return err
	}

	doc := export.FromGraph(res.Graph, export.Options{LikelyOnly: likely, RunID: res.RunID})

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := export.Write(w, format, doc); err != nil {
		return err
	}
	if outPath != "" {
		env.logger.Info("call graph written", "path", outPath, "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	}
	return nil
}
