package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/jobs"
)

const scanJobType = "conflict_scan"

type scanRunner interface {
	Plan(ctx context.Context, planID int64) (*models.SchedulePlan, error)
	ActivePlans(ctx context.Context) ([]models.SchedulePlan, error)
	DetectAndSave(ctx context.Context, planID *int64) ([]models.Conflict, bool, error)
	ClearDetected(ctx context.Context, planID *int64) (int64, error)
	ClearStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type scanPayload struct {
	PlanID        *int64
	ClearDetected bool
}

// ScanServiceConfig controls background scans.
type ScanServiceConfig struct {
	Cron        string
	ClearBefore bool
	StaleAfter  time.Duration
	StatusTTL   time.Duration
	Queue       jobs.QueueConfig
}

// ScanService runs plan scans on a job queue, either on demand or on a cron schedule.
type ScanService struct {
	runner   scanRunner
	queue    *jobs.Queue
	cron     *cron.Cron
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ScanServiceConfig
	mu       sync.Mutex
	statuses *gocache.Cache
}

// NewScanService constructs the scan scheduler. The cron spec is validated here.
func NewScanService(runner scanRunner, metrics *MetricsService, logger *zap.Logger, cfg ScanServiceConfig) (*ScanService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = time.Hour
	}
	s := &ScanService{
		runner:   runner,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		statuses: gocache.New(cfg.StatusTTL, cfg.StatusTTL),
	}

	queueCfg := cfg.Queue
	queueCfg.Logger = logger
	queueCfg.Observer = s.observe
	s.queue = jobs.NewQueue("conflict-scans", s.handle, queueCfg)

	if cfg.Cron != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(cfg.Cron, s.enqueueActivePlans); err != nil {
			return nil, fmt.Errorf("invalid scan schedule %q: %w", cfg.Cron, err)
		}
		if cfg.StaleAfter > 0 {
			if _, err := s.cron.AddFunc("@daily", s.clearStale); err != nil {
				return nil, fmt.Errorf("schedule stale cleanup: %w", err)
			}
		}
	}
	return s, nil
}

// Start launches the worker pool and the cron scheduler.
func (s *ScanService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if s.cron != nil {
		s.cron.Start()
		s.logger.Info("conflict scan schedule started", zap.String("spec", s.cfg.Cron))
	}
}

// Stop waits for running cron callbacks and drains the workers.
func (s *ScanService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.queue.Stop()
}

// Enqueue schedules a scan and returns its job id.
func (s *ScanService) Enqueue(req dto.ScanRequest) (*dto.ScanJobResponse, error) {
	if req.PlanID != nil && *req.PlanID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "planId must be positive")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    scanJobType,
		Payload: scanPayload{PlanID: req.PlanID, ClearDetected: req.ClearDetected || s.cfg.ClearBefore},
	}
	s.track(job, req.PlanID)
	if err := s.queue.Enqueue(job); err != nil {
		s.statuses.Delete(job.ID)
		return nil, appErrors.Wrap(err, "QUEUE_UNAVAILABLE", http.StatusServiceUnavailable, "scan queue unavailable")
	}
	return &dto.ScanJobResponse{JobID: job.ID, PlanID: req.PlanID}, nil
}

// Status returns the last known state of a scan job.
func (s *ScanService) Status(jobID string) (*dto.ScanJobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.statuses.Get(jobID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scan job not found")
	}
	status := *raw.(*dto.ScanJobStatus)
	return &status, nil
}

func (s *ScanService) track(job jobs.Job, planID *int64) {
	s.statuses.SetDefault(job.ID, &dto.ScanJobStatus{
		JobID:      job.ID,
		PlanID:     planID,
		Status:     string(jobs.StateQueued),
		EnqueuedAt: time.Now().UTC(),
	})
}

func (s *ScanService) update(jobID string, fn func(*dto.ScanJobStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.statuses.Get(jobID); ok {
		fn(raw.(*dto.ScanJobStatus))
	}
}

func (s *ScanService) observe(job jobs.Job, state jobs.State, err error) {
	s.update(job.ID, func(status *dto.ScanJobStatus) {
		if status.Status == string(jobs.StateFailed) {
			return
		}
		status.Status = string(state)
		if err != nil {
			status.Error = err.Error()
		}
		if state == jobs.StateSucceeded || state == jobs.StateFailed {
			finished := time.Now().UTC()
			status.FinishedAt = &finished
		}
	})
	if state == jobs.StateSucceeded || state == jobs.StateFailed {
		s.metrics.RecordScanJob(string(state))
	}
}

func (s *ScanService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(scanPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}

	if payload.PlanID != nil {
		if _, err := s.runner.Plan(ctx, *payload.PlanID); err != nil {
			if appErr := appErrors.FromError(err); appErr.Status == http.StatusNotFound {
				// A missing plan will not appear on retry.
				s.update(job.ID, func(status *dto.ScanJobStatus) {
					finished := time.Now().UTC()
					status.Status = string(jobs.StateFailed)
					status.Error = appErr.Message
					status.FinishedAt = &finished
				})
				return nil
			}
			return err
		}
	}

	if payload.ClearDetected {
		if _, err := s.runner.ClearDetected(ctx, payload.PlanID); err != nil {
			return err
		}
	}

	created, partial, err := s.runner.DetectAndSave(ctx, payload.PlanID)
	if err != nil {
		return err
	}
	s.update(job.ID, func(status *dto.ScanJobStatus) {
		status.ConflictsFound = len(created)
		status.Partial = partial
	})
	s.logger.Sugar().Infow("conflict scan job finished", "job_id", job.ID, "plan_id", planIDField(payload.PlanID), "conflicts", len(created), "partial", partial)
	return nil
}

func (s *ScanService) enqueueActivePlans() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	plans, err := s.runner.ActivePlans(ctx)
	if err != nil {
		s.logger.Warn("scheduled scan skipped", zap.Error(err))
		return
	}
	for _, plan := range plans {
		planID := plan.ID
		if _, err := s.Enqueue(dto.ScanRequest{PlanID: &planID}); err != nil {
			s.logger.Warn("failed to enqueue scheduled scan", zap.Int64("plan_id", planID), zap.Error(err))
		}
	}
}

func (s *ScanService) clearStale() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.runner.ClearStale(ctx, s.cfg.StaleAfter); err != nil {
		s.logger.Warn("stale conflict cleanup failed", zap.Error(err))
	}
}
