package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/catalogsync/internal/divergence"
	"github.com/angelmondragon/catalogsync/internal/reconcile"
	"github.com/angelmondragon/catalogsync/internal/stock"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

const (
	JobSyncStatus        = "storefront_sync_status"
	JobStockSync         = "stock_sync"
	JobDivergenceRecheck = "divergence_recheck"
)

type statusSweeper interface {
	SyncStatus(ctx context.Context) (*reconcile.SyncStatusReport, error)
}

type stockRunner interface {
	Run(ctx context.Context, lookbackDays int) (*stock.SyncSummary, error)
}

type divergenceSweeper interface {
	RecheckAll(ctx context.Context) (*divergence.Summary, error)
}

// NewSyncStatusJob orphans mappings whose storefront product disappeared.
func NewSyncStatusJob(sweeper statusSweeper, logg *logger.Logger) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &syncStatusJob{sweeper: sweeper, logg: logg}, nil
}

type syncStatusJob struct {
	sweeper statusSweeper
	logg    *logger.Logger
}

func (j *syncStatusJob) Name() string { return JobSyncStatus }

func (j *syncStatusJob) Run(ctx context.Context) error {
	report, err := j.sweeper.SyncStatus(ctx)
	if report != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"mapped_products": report.MappedProducts,
			"remote_products": report.RemoteProducts,
			"missing":         len(report.Missing),
			"orphaned":        report.Orphaned,
		}), "sync status sweep summary")
	}
	if err != nil {
		return fmt.Errorf("sync status: %w", err)
	}
	return nil
}

// NewStockSyncJob pushes recent sales onto storefront stock.
func NewStockSyncJob(runner stockRunner, lookbackDays int, logg *logger.Logger) (Job, error) {
	if runner == nil {
		return nil, fmt.Errorf("stock service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &stockSyncJob{runner: runner, lookbackDays: lookbackDays, logg: logg}, nil
}

type stockSyncJob struct {
	runner       stockRunner
	lookbackDays int
	logg         *logger.Logger
}

func (j *stockSyncJob) Name() string { return JobStockSync }

func (j *stockSyncJob) Run(ctx context.Context) error {
	summary, err := j.runner.Run(ctx, j.lookbackDays)
	if err != nil {
		return fmt.Errorf("stock sync: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"since":             summary.Since,
		"ok":                summary.OK,
		"failed":            summary.Failed,
		"skipped":           summary.Skipped,
		"already_processed": summary.Duplicate,
	}), "stock sync summary")

	var errs error
	for _, item := range summary.Items {
		if item.Outcome != stock.OutcomeFailed {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("sale line %s %s: %s", item.SaleLineID, item.Movement, item.Reason))
	}
	return errs
}

// NewDivergenceRecheckJob refreshes needs_update on every linked mapping.
func NewDivergenceRecheckJob(sweeper divergenceSweeper, logg *logger.Logger) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("divergence service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &divergenceRecheckJob{sweeper: sweeper, logg: logg}, nil
}

type divergenceRecheckJob struct {
	sweeper divergenceSweeper
	logg    *logger.Logger
}

func (j *divergenceRecheckJob) Name() string { return JobDivergenceRecheck }

func (j *divergenceRecheckJob) Run(ctx context.Context) error {
	if _, err := j.sweeper.RecheckAll(ctx); err != nil {
		return fmt.Errorf("divergence recheck: %w", err)
	}
	return nil
}
