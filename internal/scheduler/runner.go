package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
	"github.com/mamadbah2/zoofeed/internal/timeanchor"
)

// ErrBatchInProgress is returned when a batch is requested while another one is still running.
var ErrBatchInProgress = errors.New("feeding batch already in progress")

// ScheduleStore is the subset of the schedule service used by the runner.
type ScheduleStore interface {
	DueSchedules(ctx context.Context, now time.Time) ([]models.FeedingSchedule, error)
	RecordSuccess(ctx context.Context, id string, executedAt, next time.Time) error
}

// StockLedger is the subset of the ledger used by the runner.
type StockLedger interface {
	Item(ctx context.Context, foodRef string) (*models.FoodItem, error)
	Consume(ctx context.Context, foodRef string, amount float64) (models.FoodItem, error)
	Restock(ctx context.Context, foodRef string, amount float64) (models.FoodItem, error)
}

// AnimalDirectory resolves animal references for reporting.
type AnimalDirectory interface {
	FindAnimal(ctx context.Context, id string) (*models.Animal, error)
}

// Runner executes every due feeding schedule once per batch.
type Runner struct {
	schedules      ScheduleStore
	ledger         StockLedger
	animals        AnimalDirectory
	logger         *zap.Logger
	maxConcurrency int

	running atomic.Bool
	clock   func() time.Time
	newID   func() string
}

// NewRunner wires a Runner. maxConcurrency <= 0 falls back to sequential execution.
func NewRunner(schedules ScheduleStore, ledger StockLedger, animals AnimalDirectory, maxConcurrency int, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Runner{
		schedules:      schedules,
		ledger:         ledger,
		animals:        animals,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		clock:          timeanchor.CivilNow,
		newID:          uuid.NewString,
	}
}

// Running reports whether a batch is in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// RunBatch processes the schedules due at now. Per-schedule failures are
// reported in the returned results; an error is only returned when the due
// set cannot be loaded or another batch is already running.
//
// The batch is not cancellable: it runs to completion over the due set
// captured at its start even if ctx is cancelled.
func (r *Runner) RunBatch(ctx context.Context, now time.Time) (models.BatchReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return models.BatchReport{}, ErrBatchInProgress
	}
	defer r.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	report := models.BatchReport{ID: r.newID(), StartedAt: r.clock()}

	due, err := r.schedules.DueSchedules(ctx, now)
	if err != nil {
		return models.BatchReport{}, fmt.Errorf("load due schedules: %w", err)
	}

	if len(due) == 0 {
		r.logger.Debug("no feeding schedules due", zap.Time("now", now))
		report.FinishedAt = r.clock()
		return report, nil
	}

	r.logger.Info("feeding batch started",
		zap.String("batch_id", report.ID),
		zap.Int("due_count", len(due)),
		zap.Time("now", now))

	results := make([]models.ExecutionResult, len(due))
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for i := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = r.executeOne(ctx, due[i], now)
		}(i)
	}

	wg.Wait()

	report.Results = results
	report.FinishedAt = r.clock()

	skipped := report.Skipped()
	r.logger.Info("feeding batch completed",
		zap.String("batch_id", report.ID),
		zap.Int("due_count", len(due)),
		zap.Int("consumed", report.Consumed()),
		zap.Int("skipped_insufficient_stock", skipped[models.SkipInsufficientStock]),
		zap.Int("skipped_other_error", skipped[models.SkipOtherError]),
		zap.Duration("duration", report.Duration()))

	return report, nil
}

func (r *Runner) executeOne(ctx context.Context, schedule models.FeedingSchedule, now time.Time) (result models.ExecutionResult) {
	result = models.ExecutionResult{
		ScheduleID: schedule.ID,
		AnimalRef:  schedule.AnimalRef,
		FoodRef:    schedule.FoodRef,
		State:      models.StateDue,
	}

	var consumed float64
	defer func() {
		if p := recover(); p != nil {
			if consumed > 0 {
				r.returnStock(ctx, schedule, consumed)
			}
			result = r.skip(result, models.SkipOtherError, fmt.Errorf("panic during execution: %v", p))
		}
	}()

	result.State = models.StateComputing

	amount, err := schedule.PerExecutionAmount()
	if err != nil {
		return r.skip(result, models.SkipOtherError, err)
	}
	result.Amount = amount

	animal, err := r.animals.FindAnimal(ctx, schedule.AnimalRef)
	if err != nil {
		return r.skip(result, models.SkipOtherError, err)
	}
	result.AnimalName = animal.Name

	item, err := r.ledger.Item(ctx, schedule.FoodRef)
	if err != nil {
		return r.skip(result, models.SkipOtherError, err)
	}
	result.FoodName = item.Name

	next, err := timeanchor.NextExecution(schedule.Frequency, schedule.TimeOfDay, now)
	if err != nil {
		return r.skip(result, models.SkipOtherError, err)
	}

	updated, err := r.ledger.Consume(ctx, schedule.FoodRef, amount)
	if err != nil {
		var stockErr *models.InsufficientStockError
		if errors.As(err, &stockErr) {
			result.Shortfall = stockErr.Shortfall()
			result.RemainingStock = stockErr.Available
			return r.skip(result, models.SkipInsufficientStock, err)
		}
		return r.skip(result, models.SkipOtherError, err)
	}
	consumed = amount

	if err := r.schedules.RecordSuccess(ctx, schedule.ID, now, next); err != nil {
		consumed = 0
		r.returnStock(ctx, schedule, amount)
		return r.skip(result, models.SkipOtherError, err)
	}
	consumed = 0

	result.State = models.StateConsumed
	result.RemainingStock = updated.CurrentStock
	result.BelowMinimum = updated.BelowMinimum()
	result.NextExecutionAt = &next

	r.logger.Info("feeding executed",
		zap.String("schedule_id", schedule.ID),
		zap.String("animal", result.AnimalName),
		zap.String("food", result.FoodName),
		zap.Float64("amount", amount),
		zap.Float64("remaining_stock", updated.CurrentStock),
		zap.Time("next_execution_at", next))

	return result
}

// returnStock hands a consumed amount back when the schedule was not advanced,
// so the retry on the next tick does not draw it twice.
func (r *Runner) returnStock(ctx context.Context, schedule models.FeedingSchedule, amount float64) {
	if _, err := r.ledger.Restock(ctx, schedule.FoodRef, amount); err != nil {
		r.logger.Error("failed to return stock for unrecorded feeding",
			zap.String("schedule_id", schedule.ID),
			zap.String("food_ref", schedule.FoodRef),
			zap.Float64("amount", amount),
			zap.Error(err))
	}
}

func (r *Runner) skip(result models.ExecutionResult, reason models.SkipReason, err error) models.ExecutionResult {
	result.State = models.StateSkipped
	result.Reason = reason
	result.RetryPending = true
	result.NextExecutionAt = nil
	if err != nil {
		result.Error = err.Error()
	}

	r.logger.Warn("feeding skipped",
		zap.String("schedule_id", result.ScheduleID),
		zap.String("animal_ref", result.AnimalRef),
		zap.String("food_ref", result.FoodRef),
		zap.String("reason", string(reason)),
		zap.Float64("amount", result.Amount),
		zap.Float64("shortfall", result.Shortfall),
		zap.Error(err))
	return result
}
