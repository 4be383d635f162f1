package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mel-hsw/longevity-research-portal/internal/bootstrap"
	"github.com/mel-hsw/longevity-research-portal/internal/config"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
	"github.com/mel-hsw/longevity-research-portal/internal/eval"
	"github.com/mel-hsw/longevity-research-portal/internal/observability/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "eval",
	Short: "eval — batch evaluation harness for the research QA pipeline",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a query set through the pipeline and write a report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEval(cmd.Context())
	},
}

func init() {
	runCmd.Flags().String("queries", "eval/queries.yaml", "query set YAML path")
	runCmd.Flags().String("label", "baseline", "run label for the report")
	runCmd.Flags().Int("workers", 4, "worker pool size")
	runCmd.Flags().Int("retries", 2, "sequential retry rounds for failed queries")
	runCmd.Flags().String("output", "eval/results", "output directory")
	runCmd.Flags().Float64("vector-weight", 0, "override vector fusion weight")
	runCmd.Flags().Float64("lexical-weight", 0, "override lexical fusion weight")

	for _, name := range []string{"queries", "label", "workers", "retries", "output", "vector-weight", "lexical-weight"} {
		_ = viper.BindPFlag("eval."+name, runCmd.Flags().Lookup(name))
	}

	rootCmd.AddCommand(runCmd)
}

func runEval(ctx context.Context) error {
	cfg := config.Load()
	if w := viper.GetFloat64("eval.vector-weight"); w > 0 {
		cfg.VectorWeight = w
	}
	if w := viper.GetFloat64("eval.lexical-weight"); w > 0 {
		cfg.LexicalWeight = w
	}

	set, err := eval.LoadQuerySet(viper.GetString("eval.queries"))
	if err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	label := viper.GetString("eval.label")
	runner := eval.NewRunner(
		func() ports.QueryService { return app.NewPipeline() },
		app.Judge,
		app.Logger,
		eval.RunnerOptions{
			Workers:     viper.GetInt("eval.workers"),
			RetryRounds: viper.GetInt("eval.retries"),
			Metrics:     metrics.NewEvalMetrics("lrp-eval"),
		},
	)

	app.Logger.Info("eval_start", "label", label, "queries", len(set.Queries))
	results, err := runner.Run(ctx, set)
	if err != nil {
		return fmt.Errorf("run evaluation: %w", err)
	}
	summary := eval.Summarize(label, results)

	outputDir := viper.GetString("eval.output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	reportPath := filepath.Join(outputDir, label+"_report.md")
	reportFile, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer reportFile.Close()
	if err := eval.WriteMarkdownReport(reportFile, summary, results); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	rawPath := filepath.Join(outputDir, label+"_results.json")
	rawFile, err := os.Create(rawPath)
	if err != nil {
		return fmt.Errorf("create raw results: %w", err)
	}
	defer rawFile.Close()
	if err := eval.WriteJSONResults(rawFile, summary, results); err != nil {
		return fmt.Errorf("write raw results: %w", err)
	}

	app.Logger.Info("eval_done",
		"label", label,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"citation_precision", summary.CitationPrecision,
		"no_evidence_accuracy", summary.NoEvidenceAccuracy,
		"faithfulness", summary.Faithfulness,
		"report", reportPath,
	)
	return nil
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
