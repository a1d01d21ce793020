package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-call-graph/internal/watch"
	"github.com/l3aro/go-call-graph/pkg/analysis"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Report calls between incompatible execution contexts",
	Long: `Builds the call graph and reports every chain of likely calls from a
method annotated with one context of a rule to a method annotated with the
other, for example from @UiThread code into @WorkerThread code.

Rules come from the contexts section of the config; without one the
UiThread/MainThread versus WorkerThread/BinderThread rule is used.
Exits with status 1 when a violation is found.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	checkCmd.Flags().BoolP("watch", "w", false, "Re-run whenever a Java source changes")
	checkCmd.Flags().Bool("uncertain", false, "Also build non-unique override edges")
}

func runCheck(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	watching, _ := cmd.Flags().GetBool("watch")
	uncertain, _ := cmd.Flags().GetBool("uncertain")

	a := newAnalyzer(root, uncertain)
	report := func(res *analysis.Result) error {
		if jsonOutput {
			return printCheckJSON(cmd.OutOrStdout(), res)
		}
		printCheck(cmd.OutOrStdout(), res)
		return nil
	}

	if watching {
		return watchCheck(cmd.Context(), root, a, report)
	}

	var res *analysis.Result
	err = withSpinner("Checking contexts...", func() error {
		res, err = a.Check(cmd.Context())
		return err
	})
	if err != nil {
		return err
	}
	if err := report(res); err != nil {
		return err
	}
	if len(res.Violations) > 0 {
		return ErrViolations
	}
	return nil
}

// watchCheck runs the check once and again after every content change
// until interrupted. Source hashes persist under the project.
func watchCheck(ctx context.Context, root string, a *analysis.Analyzer, report func(*analysis.Result) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	statePath := filepath.Join(root, watch.DefaultStateFile)
	tracker := watch.NewTracker()
	if err := tracker.Load(statePath); err != nil {
		env.logger.Warn("ignoring watch state", "path", statePath, "error", err)
	}

	w, err := watch.New(watch.Options{
		Root:    root,
		List:    a.Sources,
		Skip:    a.SkipDir,
		Tracker: tracker,
		Logger:  env.logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	env.logger.Info("watching for changes", "root", root)
	return w.Run(ctx, func(ctx context.Context, changes watch.Changes) error {
		res, err := a.Check(ctx)
		if err != nil {
			return err
		}
		if err := tracker.Save(statePath); err != nil {
			env.logger.Warn("failed to save watch state", "error", err)
		}
		return report(res)
	})
}
