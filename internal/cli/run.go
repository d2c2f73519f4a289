package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veritas/internal/pipeline"
)

var (
	startFrom     string
	skipReasoning bool
	runLimit      int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline",
	Long: `Run executes every stage in order:

  ingest → index → claims → retrieve → reason → aggregate

Each stage reads the artifacts of the previous one from disk, so a run can be
resumed with --start-from. Claims that already have a verdict are not sent to
the reasoning backend again.

Example:
  veritas run
  veritas run --local --limit 10
  veritas run --start-from retrieve --backend openai
  veritas run --skip-reasoning`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&startFrom, "start-from", "ingest", "first stage to run (ingest, index, claims, retrieve, reason, aggregate)")
	runCmd.Flags().BoolVar(&skipReasoning, "skip-reasoning", false, "skip the reasoning stage")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "test mode: only process the first N claims")
	addReasonFlags(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	st, err := pipeline.ParseStage(startFrom)
	if err != nil {
		return err
	}
	cfg, err := stageConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	printBanner("Veritas Pipeline")
	fmt.Fprintf(os.Stderr, "  Start from:   %s\n", st)
	fmt.Fprintf(os.Stderr, "  Sources:      %s\n", cfg.Paths.SourcesDir)
	fmt.Fprintf(os.Stderr, "  Embedder:     %s\n", cfg.Embed.Provider)
	fmt.Fprintf(os.Stderr, "  Index:        %s\n", cfg.Index.Backend)
	if skipReasoning {
		fmt.Fprintf(os.Stderr, "  Reasoning:    skipped\n")
	} else {
		fmt.Fprintf(os.Stderr, "  Reasoning:    %s\n", cfg.Reason.Backend)
	}
	if runLimit > 0 {
		fmt.Fprintf(os.Stderr, "  Limit:        %d claims\n", runLimit)
	}
	fmt.Fprintf(os.Stderr, "\n")

	started := time.Now()
	p := pipeline.New(cfg, logger, os.Stderr)
	if err := p.Run(ctx, pipeline.RunOptions{StartFrom: st, SkipReasoning: skipReasoning, Limit: runLimit}); err != nil {
		return err
	}

	printBanner("Pipeline Complete")
	fmt.Fprintf(os.Stderr, "  Elapsed:  %s\n", time.Since(started).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Report:   %s\n", cfg.Paths.ReportFile)
	fmt.Fprintf(os.Stderr, "\n")
	return nil
}
