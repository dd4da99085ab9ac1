package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/bootstrap"
	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/config"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/database"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/logger"
)

func main() {
	var opts options
	flag.Int64Var(&opts.PlanID, "plan-id", 0, "Schedule plan to check (0 = all active events)")
	flag.BoolVar(&opts.AutoResolve, "auto-resolve", false, "Auto-resolve conflicts whose type allows it")
	flag.BoolVar(&opts.SuggestSolutions, "suggest-solutions", false, "Print suggestions for the first detected conflicts")
	flag.BoolVar(&opts.ClearOld, "clear-old", false, "Delete resolved and ignored conflicts older than CONFLICT_STALE_AFTER")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Print every detected conflict and debug logs")
	flag.DurationVar(&opts.Timeout, "timeout", 0, "Abort detection after this long (0 = CONFLICT_SCAN_TIMEOUT)")
	flag.StringVar(&opts.ExportFormat, "export", "", "Write a conflict report: csv, pdf or xlsx")
	flag.StringVar(&opts.ExportDir, "export-dir", ".", "Directory for -export when object storage is not configured")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	execute(ctx, opts, os.Stdout, newEngineRunner)
}

// runnerSetup wires a runner and returns the cleanup releasing what it opened.
type runnerSetup func(ctx context.Context, opts options, out io.Writer) (*runner, func(), error)

// execute never fails the process: setup errors are printed as part of the report.
func execute(ctx context.Context, opts options, out io.Writer, setup runnerSetup) {
	r, cleanup, err := setup(ctx, opts, out)
	if err != nil {
		fmt.Fprintf(out, "Conflict check aborted: %v\n", err)
		return
	}
	defer cleanup()
	r.run(ctx, opts)
}

func newEngineRunner(ctx context.Context, opts options, out io.Writer) (*runner, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
	}
	if opts.Timeout > 0 {
		cfg.Conflicts.ScanTimeout = opts.Timeout
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Error("failed to connect to postgres", zap.Error(err))
		_ = logr.Sync()
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	engine, err := bootstrap.NewEngine(ctx, cfg, db, logr, bootstrap.Options{
		DownloadPath: cfg.APIPrefix + "/conflicts/reports/download",
	})
	if err != nil {
		logr.Error("failed to wire conflict engine", zap.Error(err))
		_ = db.Close()
		_ = logr.Sync()
		return nil, nil, fmt.Errorf("wire conflict engine: %w", err)
	}

	r := &runner{
		checker:    engine.Conflicts,
		reports:    engine.Exports,
		archive:    engine.LocalReports == nil,
		out:        out,
		logger:     logr,
		staleAfter: cfg.Conflicts.StaleAfter,
		writeFile:  os.WriteFile,
		now:        time.Now,
	}
	cleanup := func() {
		engine.Close()
		_ = db.Close()
		_ = logr.Sync()
	}
	return r, cleanup, nil
}

type options struct {
	PlanID           int64
	AutoResolve      bool
	SuggestSolutions bool
	ClearOld         bool
	Verbose          bool
	Timeout          time.Duration
	ExportFormat     string
	ExportDir        string
}

func (o options) plan() *int64 {
	if o.PlanID <= 0 {
		return nil
	}
	id := o.PlanID
	return &id
}

func (o options) exportFormat() (dto.ExportFormat, error) {
	switch format := dto.ExportFormat(o.ExportFormat); format {
	case dto.ExportCSV, dto.ExportPDF, dto.ExportXLSX:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", o.ExportFormat)
	}
}
