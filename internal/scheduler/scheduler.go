package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/config"
	"github.com/mamadbah2/zoofeed/internal/domain/models"
	"github.com/mamadbah2/zoofeed/internal/timeanchor"
)

// BatchSink receives every completed batch report (metrics, alerts, feeding log).
type BatchSink interface {
	HandleBatch(ctx context.Context, report models.BatchReport) error
}

// BatchSinkFunc adapts a function to BatchSink.
type BatchSinkFunc func(ctx context.Context, report models.BatchReport) error

// HandleBatch calls f.
func (f BatchSinkFunc) HandleBatch(ctx context.Context, report models.BatchReport) error {
	return f(ctx, report)
}

const sinkTimeout = 30 * time.Second

// Scheduler triggers the feeding runner on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	sinks  []BatchSink
	cfg    config.FeedingConfig
	logger *zap.Logger

	// startup tracks the run-on-start batch, which cron.Stop does not see.
	startup sync.WaitGroup
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.FeedingConfig, runner *Runner, logger *zap.Logger, sinks ...BatchSink) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Overlapping ticks are dropped by the cron chain; the runner's own guard
	// also covers manual runs triggered over HTTP.
	cronLog := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLocation(timeanchor.Civil),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{
		cron:   c,
		runner: runner,
		sinks:  sinks,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the feeding job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.CronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.runFeedingBatch); err != nil {
		return fmt.Errorf("schedule feeding batch %q: %w", s.cfg.CronSchedule, err)
	}

	s.cron.Start()

	if s.cfg.RunOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.runFeedingBatch()
		}()
	}
	return nil
}

// Stop stops the cron loop and waits for in-flight batches, including the
// run-on-start one, to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	s.startup.Wait()
}

// RunNow executes a batch immediately and dispatches it to the sinks.
func (s *Scheduler) RunNow(ctx context.Context) (models.BatchReport, error) {
	report, err := s.runner.RunBatch(ctx, timeanchor.CivilNow())
	if err != nil {
		return models.BatchReport{}, err
	}
	s.dispatch(ctx, report)
	return report, nil
}

func (s *Scheduler) runFeedingBatch() {
	_, err := s.RunNow(context.Background())
	switch {
	case errors.Is(err, ErrBatchInProgress):
		s.logger.Warn("previous feeding batch still running, tick skipped")
	case err != nil:
		s.logger.Error("feeding batch failed", zap.Error(err))
	}
}

func (s *Scheduler) dispatch(ctx context.Context, report models.BatchReport) {
	if len(report.Results) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.HandleBatch(ctx, report); err != nil {
			s.logger.Error("batch sink failed", zap.String("batch_id", report.ID), zap.Error(err))
		}
	}
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
