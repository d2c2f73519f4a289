package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veritas/internal/aggregate"
	"github.com/ppiankov/veritas/internal/claims"
	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/pipeline"
	"github.com/ppiankov/veritas/internal/reason"
	"github.com/ppiankov/veritas/internal/store"
)

var (
	stageLimit    int
	reasonBackend string
	reasonModel   string
	reasonForce   bool
	reasonCheck   bool
	reasonLocal   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Segment the source texts into the segment store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, pipeline.StageIngest)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the segments and build the similarity index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, pipeline.StageIndex)
	},
}

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Parse the claim CSV files into the claim store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, pipeline.StageClaims)
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Select ranked evidence for every claim",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, pipeline.StageRetrieve)
	},
}

var reasonCmd = &cobra.Command{
	Use:   "reason",
	Short: "Resolve a verdict for every claim with a reasoning backend",
	Long: `Reason sends each claim and its evidence to the reasoning backend and
persists one verdict per claim.

Claims that already have a verdict are skipped, so an interrupted run can
simply be restarted. Use --force to judge every claim again.

Example:
  veritas reason --check
  veritas reason --backend openai --model gpt-4o-mini
  veritas reason --local --limit 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reasonCheck {
			return runCheck(cmd)
		}
		return runStage(cmd, pipeline.StageReason)
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Join verdicts and claims into the final report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, pipeline.StageAggregate)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score persisted verdicts against labelled claims",
	RunE:  runEvaluate,
}

func init() {
	for _, c := range []*cobra.Command{retrieveCmd, reasonCmd} {
		c.Flags().IntVar(&stageLimit, "limit", 0, "only process the first N claims (0 = all)")
	}
	addReasonFlags(reasonCmd)
	reasonCmd.Flags().BoolVar(&reasonCheck, "check", false, "only check that the backend is reachable")

	rootCmd.AddCommand(ingestCmd, indexCmd, claimsCmd, retrieveCmd, reasonCmd, aggregateCmd, evaluateCmd)
}

func addReasonFlags(c *cobra.Command) {
	c.Flags().StringVar(&reasonBackend, "backend", "", "reasoning backend (anthropic, openai, ollama)")
	c.Flags().StringVar(&reasonModel, "model", "", "reasoning model name")
	c.Flags().BoolVar(&reasonForce, "force", false, "re-judge claims that already have a verdict")
	c.Flags().BoolVar(&reasonLocal, "local", false, "use the local Ollama backend")
}

// stageConfig loads the configuration and applies the command's flags
func stageConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Lookup("backend") != nil && flags.Changed("backend") {
		cfg.Reason.Backend = reasonBackend
	}
	if flags.Lookup("local") != nil && reasonLocal {
		cfg.Reason.Backend = "ollama"
	}
	if flags.Lookup("model") != nil && flags.Changed("model") {
		cfg.Reason.Model = reasonModel
	}
	if flags.Lookup("force") != nil && reasonForce {
		cfg.Reason.Force = true
	}
	return cfg, nil
}

// signalContext is canceled on SIGINT/SIGTERM. Finished claims stay persisted.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runStage(cmd *cobra.Command, st pipeline.Stage) error {
	cfg, err := stageConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	printBanner(fmt.Sprintf("Veritas: %s", st))
	started := time.Now()

	p := pipeline.New(cfg, logger, os.Stderr)
	if err := p.RunStage(ctx, st, stageLimit); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %s failed: %v\n", st, err)
		return err
	}

	fmt.Fprintf(os.Stderr, "\n✓ %s complete in %s\n\n", st, time.Since(started).Round(time.Millisecond))
	return nil
}

func runCheck(cmd *cobra.Command) error {
	cfg, err := stageConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cfg)

	backend, err := reason.NewBackend(reason.ConfigFromModel(cfg.Reason))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !backend.IsAvailable(ctx) {
		fmt.Fprintf(os.Stderr, "✗ %s backend is not available\n", backend.Name())
		return fmt.Errorf("%s backend is not available", backend.Name())
	}
	fmt.Fprintf(os.Stderr, "✓ %s backend is available\n", backend.Name())
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := stageConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	verdictStore, err := store.New(ctx, cfg.Store, cfg.Paths.VerdictsDir, pipeline.VerdictsNamespace)
	if err != nil {
		return err
	}
	defer func() { _ = verdictStore.Close() }()

	verdicts, err := store.LoadVerdicts(ctx, verdictStore)
	if err != nil {
		return err
	}
	cl, err := claims.Load(cfg.Paths.ClaimsFile)
	if err != nil {
		return err
	}

	rows := aggregate.Aggregate(verdicts, cl, cfg.Aggregate.RationaleMax)
	eval := aggregate.Evaluate(rows, cl)
	if eval.Labelled == 0 {
		return fmt.Errorf("%w: no labelled claims in %s", model.ErrInputMissing, cfg.Paths.ClaimsFile)
	}

	printBanner("Veritas: evaluation")
	aggregate.PrintSummary(os.Stderr, model.Report{Rows: rows, Summary: aggregate.Summarize(rows, verdicts), Evaluation: &eval})
	if len(eval.Mismatches) > 0 && cfg.Verbose {
		fmt.Fprintf(os.Stderr, "\nMismatches:\n")
		for _, m := range eval.Mismatches {
			fmt.Fprintf(os.Stderr, "  %s: expected %d, predicted %d\n", m.ID, m.Expected, m.Prediction)
		}
	}
	return aggregate.WriteJSON(os.Stdout, eval)
}

func printBanner(title string) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  %s\n", title)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
}
