package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/registry/internal/registry"
	"github.com/JonMunkholm/registry/internal/store/memory"
)

type importOptions struct {
	output        string
	batchSize     int
	reportSkipped bool
	dryRun        bool
	quiet         bool
	timeout       time.Duration
}

func newImportCmd() *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Reconcile a registry CSV export into the store",
		Long: `Reconcile a registry CSV export into the store.

Rows are upserted by tax ID in chunks of --batch-size. A write failure rolls
back its whole chunk and the import continues with the next one. Rows already
committed stay committed if the import is interrupted.

Use --dry-run to reconcile into an empty in-memory store and preview the counts.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutputFormat(opts.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", string(outputTable), "output format: table, json, yaml")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "rows per transaction (default from IMPORT_BATCH_SIZE)")
	cmd.Flags().BoolVar(&opts.reportSkipped, "report-skipped", false, "report how many rows the parser discarded")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "reconcile into an in-memory store instead of the configured one")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not show a progress spinner")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort between chunks after this long (default from IMPORT_TIMEOUT)")
	return cmd
}

func runImport(cmd *cobra.Command, path string, opts *importOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := registry.ServiceConfig{
		BatchSize:         cfg.Import.BatchSize,
		MaxReportedErrors: cfg.Import.MaxReportedErrors,
		ReportSkipped:     cfg.Import.ReportSkipped || opts.reportSkipped,
		MaxConcurrent:     1,
		Timeout:           cfg.Import.Timeout,
	}
	if opts.batchSize > 0 {
		sc.BatchSize = opts.batchSize
	}
	if opts.timeout > 0 {
		sc.Timeout = opts.timeout
	}

	var svc *registry.Service
	if opts.dryRun {
		svc = registry.NewService(memory.New(nil), sc, nil)
	} else {
		s, backend, err := openService(ctx, sc)
		if err != nil {
			return err
		}
		defer backend.Close()
		svc = s
	}

	outcome, err := withSpinner(ctx, !opts.quiet && opts.output == string(outputTable),
		" Importing "+filepath.Base(path)+"...", "Import failed",
		func(ctx context.Context) (*registry.Outcome, error) {
			return svc.Import(ctx, filepath.Base(path), f)
		})
	if err != nil {
		return fmt.Errorf("%s (%w)", registry.FormatUserError(err), err)
	}

	if err := printOutcome(cmd.OutOrStdout(), outputFormat(opts.output), outcome, opts.dryRun); err != nil {
		return err
	}
	if outcome.Failed > 0 {
		return &partialImportError{failed: outcome.Failed}
	}
	return nil
}

// withSpinner runs fn while showing a spinner on stderr when show is set.
// failMsg replaces the spinner line when fn fails.
func withSpinner[T any](ctx context.Context, show bool, suffix, failMsg string, fn func(context.Context) (T, error)) (T, error) {
	if !show {
		return fn(ctx)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = suffix
	s.Start()
	defer s.Stop()

	v, err := fn(ctx)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint(failMsg) + "\n"
	}
	return v, err
}
