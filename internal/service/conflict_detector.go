package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

// ConflictDetectorConfig tunes detection fan-out.
type ConflictDetectorConfig struct {
	Workers int
}

// ConflictDetector runs every rule evaluator over the active events of a plan.
type ConflictDetector struct {
	events  conflictEventStore
	rules   schedulingRuleStore
	refs    schedulingReferenceStore
	metrics *MetricsService
	logger  *zap.Logger
	workers int
}

// NewConflictDetector constructs a detector.
func NewConflictDetector(events conflictEventStore, rules schedulingRuleStore, refs schedulingReferenceStore, metrics *MetricsService, logger *zap.Logger, cfg ConflictDetectorConfig) *ConflictDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ConflictDetector{
		events:  events,
		rules:   rules,
		refs:    refs,
		metrics: metrics,
		logger:  logger,
		workers: cfg.Workers,
	}
}

// Detect evaluates all active events, optionally restricted to one plan. Findings are returned in
// event order, and per event in evaluator order. If ctx is cancelled the findings of events already
// evaluated are returned together with the context error.
func (d *ConflictDetector) Detect(ctx context.Context, planID *int64) ([]dto.ConflictDescriptor, error) {
	started := time.Now()

	targets, err := d.events.ListActiveEvents(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	universe := targets
	if planID != nil {
		// Room bookings are compared across plans.
		universe, err = d.events.ListActiveEvents(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("list active events: %w", err)
		}
	}

	snap := newScheduleSnapshot(universe, d.rules, d.refs)
	results := make([][]dto.ConflictDescriptor, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range targets {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = d.evaluateEvent(gctx, snap, &targets[i])
			return nil
		})
	}
	_ = g.Wait()

	var found []dto.ConflictDescriptor
	for _, r := range results {
		found = append(found, r...)
	}
	for _, c := range found {
		d.metrics.RecordConflictDetected(c.Type, c.Severity)
	}

	ctxErr := ctx.Err()
	d.metrics.ObserveConflictScan(time.Since(started), ctxErr != nil)
	d.logger.Sugar().Infow("conflict detection finished",
		"plan_id", planIDField(planID),
		"events", len(targets),
		"conflicts", len(found),
		"duration", time.Since(started),
		"partial", ctxErr != nil,
	)
	return found, ctxErr
}

// evaluateEvent runs the evaluators for one event in a fixed order.
func (d *ConflictDetector) evaluateEvent(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	var found []dto.ConflictDescriptor
	found = append(found, d.checkTeacherConflicts(snap, event)...)
	found = append(found, d.checkRoomConflicts(snap, event)...)

	checks := []func(context.Context, *scheduleSnapshot, *models.ScheduledEvent) []dto.ConflictDescriptor{
		d.checkTeacherAvailability,
		d.checkRoomAvailability,
		d.checkWorkingHours,
		d.checkTeacherWorkload,
		d.checkRoomCapacity,
	}
	for _, check := range checks {
		if ctx.Err() != nil {
			return found
		}
		found = append(found, check(ctx, snap, event)...)
	}
	return found
}

func planIDField(planID *int64) interface{} {
	if planID == nil {
		return "all"
	}
	return *planID
}
