package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-call-graph/internal/config"
	"github.com/l3aro/go-call-graph/internal/log"
	"github.com/l3aro/go-call-graph/internal/metrics"
	"github.com/l3aro/go-call-graph/internal/telemetry"
	"github.com/l3aro/go-call-graph/pkg/analysis"
)

// ErrViolations is returned by check when at least one violation was found.
// The entry point maps it to exit status 1 without printing it.
var ErrViolations = errors.New("violations found")

// Version is set by main.
var Version = "dev"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gcg",
	Short: "go-call-graph - Call graphs and thread-context checks for Java",
	Long: `go-call-graph builds a classified call graph of a Java project and
reports call chains that cross between incompatible execution contexts.

Commands:
  graph       Build and print the call graph
  check       Report context violations
  export      Load the call graph into an external store
  init        Create a project configuration interactively

Use "gcg [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var flags struct {
	config      string
	verbose     bool
	logJSON     bool
	metricsFile string
	trace       bool
}

// env is what setup prepares for the command being run.
var env struct {
	cfg      *config.Config
	logger   log.Logger
	metrics  *metrics.Metrics
	shutdown telemetry.ShutdownFunc
}

// Execute runs the command line. Tracing is flushed and metrics are written
// even when the command fails.
func Execute() error {
	err := RootCmd.Execute()
	return errors.Join(err, teardown())
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "Config file (default: .gcg/config.yaml, then ~/.gcg/config.yaml)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Debug logging")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Log JSON lines to stderr")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	pf.BoolVar(&flags.trace, "trace", false, "Print OpenTelemetry spans to stderr")

	RootCmd.AddCommand(graphCmd)
	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(initCmd)
}

// projectRoot is the first positional path argument, or the working directory.
func projectRoot(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	return abs, nil
}

func setup(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	var err error
	if flags.config != "" {
		env.cfg, err = config.LoadFromFile(flags.config)
	} else {
		env.cfg, err = config.Load(root)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("verbose") && flags.verbose {
		env.cfg.LogLevel = "debug"
	}
	if cmd.Flags().Changed("log-json") {
		env.cfg.LogJSON = flags.logJSON
	}
	if cmd.Flags().Changed("metrics-file") {
		env.cfg.MetricsFile = flags.metricsFile
	}
	if cmd.Flags().Changed("trace") {
		env.cfg.Trace = flags.trace
	}

	level, err := log.ParseLevel(env.cfg.LogLevel)
	if err != nil {
		return err
	}
	env.logger = log.New(log.LoggerConfig{Level: level, JSONOutput: env.cfg.LogJSON})
	env.metrics = metrics.New()

	env.shutdown, err = telemetry.Setup(telemetry.Options{
		Enabled: env.cfg.Trace,
		Version: Version,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	return nil
}

func teardown() error {
	var errs []error
	if env.shutdown != nil {
		errs = append(errs, env.shutdown(context.Background()))
	}
	if env.metrics != nil && env.cfg.MetricsFile != "" {
		errs = append(errs, env.metrics.WriteTextfile(env.cfg.MetricsFile))
	}
	return errors.Join(errs...)
}

// newAnalyzer builds an analyzer for root from the loaded configuration.
func newAnalyzer(root string, includeUncertain bool) *analysis.Analyzer {
	opts := analysis.OptionsFromConfig(env.cfg, root)
	if includeUncertain {
		opts.Build.IncludeUncertain = true
	}
	opts.Logger = env.logger
	opts.Metrics = env.metrics
	return analysis.New(opts)
}

// withSpinner runs fn while a spinner animates on an interactive stderr.
func withSpinner(message string, fn func() error) error {
	if env.cfg.LogJSON {
		return fn()
	}
	spinner := log.NewProgressSpinner(message)
	spinner.Start()
	defer spinner.Stop()
	return fn()
}
