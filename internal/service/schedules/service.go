package schedules

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
	"github.com/mamadbah2/zoofeed/internal/timeanchor"
)

// Repository is the persisted feeding schedule collection.
type Repository interface {
	InsertSchedule(ctx context.Context, schedule models.FeedingSchedule) error
	FindSchedule(ctx context.Context, id string) (*models.FeedingSchedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]models.FeedingSchedule, error)
	MarkExecuted(ctx context.Context, id string, executedAt, next time.Time) error
	UpdateScheduleStructure(ctx context.Context, id string, freq models.Frequency, tod models.TimeOfDay, next time.Time) error
	SetScheduleActive(ctx context.Context, id string, active bool, next time.Time) error
}

// StockReader exposes the food item lookup used by the creation-time check.
type StockReader interface {
	Item(ctx context.Context, foodRef string) (*models.FoodItem, error)
}

// AnimalDirectory resolves animal references.
type AnimalDirectory interface {
	FindAnimal(ctx context.Context, id string) (*models.Animal, error)
}

// CreateInput carries the fields accepted when creating a schedule.
type CreateInput struct {
	AnimalRef         string  `json:"animal_ref"`
	FoodRef           string  `json:"food_ref"`
	TimeOfDay         string  `json:"time_of_day"`
	Frequency         string  `json:"frequency"`
	QuantityPerPeriod float64 `json:"quantity_per_period"`
	Notes             string  `json:"notes"`
}

// Service owns the feeding schedule lifecycle and the due-selection used by the runner.
type Service struct {
	repo    Repository
	stock   StockReader
	animals AnimalDirectory
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewService constructs a schedule service.
func NewService(repo Repository, stock StockReader, animals AnimalDirectory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		stock:   stock,
		animals: animals,
		logger:  logger,
		now:     timeanchor.CivilNow,
		newID:   uuid.NewString,
	}
}

// DueSchedules returns every active schedule whose next execution is at or before now.
func (s *Service) DueSchedules(ctx context.Context, now time.Time) ([]models.FeedingSchedule, error) {
	return s.repo.ListDueSchedules(ctx, now)
}

// RecordSuccess stamps a successful execution and advances the schedule.
func (s *Service) RecordSuccess(ctx context.Context, id string, executedAt, next time.Time) error {
	return s.repo.MarkExecuted(ctx, id, executedAt, next)
}

// RecordStructuralChange applies a frequency/time-of-day edit and persists the recomputed next execution.
func (s *Service) RecordStructuralChange(ctx context.Context, id string, frequency, timeOfDay string) (time.Time, error) {
	freq, tod, err := parseStructure(frequency, timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	next, err := timeanchor.NextExecution(freq, tod, s.now())
	if err != nil {
		return time.Time{}, err
	}

	if err := s.repo.UpdateScheduleStructure(ctx, id, freq, tod, next); err != nil {
		return time.Time{}, err
	}

	s.logger.Info("feeding schedule structure changed",
		zap.String("schedule_id", id),
		zap.String("frequency", string(freq)),
		zap.Stringer("time_of_day", tod),
		zap.Time("next_execution_at", next))
	return next, nil
}

// Create validates the input, checks the first execution can be served from
// current stock and persists the new schedule.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.FeedingSchedule, error) {
	freq, tod, err := parseStructure(in.Frequency, in.TimeOfDay)
	if err != nil {
		return models.FeedingSchedule{}, err
	}

	animalRef := strings.TrimSpace(in.AnimalRef)
	foodRef := strings.TrimSpace(in.FoodRef)
	switch {
	case animalRef == "":
		return models.FeedingSchedule{}, models.NewValidationError("animal_ref", "must be provided")
	case foodRef == "":
		return models.FeedingSchedule{}, models.NewValidationError("food_ref", "must be provided")
	case math.IsNaN(in.QuantityPerPeriod) || math.IsInf(in.QuantityPerPeriod, 0) || in.QuantityPerPeriod <= 0:
		return models.FeedingSchedule{}, models.NewValidationError("quantity_per_period", "must be a positive number")
	}

	if s.animals != nil {
		if _, err := s.animals.FindAnimal(ctx, animalRef); err != nil {
			return models.FeedingSchedule{}, err
		}
	}

	item, err := s.stock.Item(ctx, foodRef)
	if err != nil {
		return models.FeedingSchedule{}, err
	}

	amount, err := freq.PerExecutionAmount(in.QuantityPerPeriod)
	if err != nil {
		return models.FeedingSchedule{}, err
	}
	if amount > item.CurrentStock {
		return models.FeedingSchedule{}, models.NewValidationError("quantity_per_period",
			fmt.Sprintf("per-feeding amount %.3f exceeds current stock %.3f of %s", amount, item.CurrentStock, item.Name))
	}

	now := s.now()
	next, err := timeanchor.NextExecution(freq, tod, now)
	if err != nil {
		return models.FeedingSchedule{}, err
	}

	schedule := models.FeedingSchedule{
		ID:                s.newID(),
		AnimalRef:         animalRef,
		FoodRef:           foodRef,
		TimeOfDay:         tod,
		Frequency:         freq,
		QuantityPerPeriod: in.QuantityPerPeriod,
		Active:            true,
		NextExecutionAt:   next,
		Notes:             in.Notes,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}

	if err := s.repo.InsertSchedule(ctx, schedule); err != nil {
		return models.FeedingSchedule{}, err
	}

	s.logger.Info("feeding schedule created",
		zap.String("schedule_id", schedule.ID),
		zap.String("animal_ref", animalRef),
		zap.String("food_ref", foodRef),
		zap.Time("next_execution_at", next))
	return schedule, nil
}

// Deactivate excludes a schedule from due-selection while keeping it for history.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetScheduleActive(ctx, id, false, time.Time{}); err != nil {
		return err
	}
	s.logger.Info("feeding schedule deactivated", zap.String("schedule_id", id))
	return nil
}

// Activate re-enables a schedule with a freshly computed next execution.
func (s *Service) Activate(ctx context.Context, id string) (time.Time, error) {
	schedule, err := s.repo.FindSchedule(ctx, id)
	if err != nil {
		return time.Time{}, err
	}

	next, err := timeanchor.NextExecution(schedule.Frequency, schedule.TimeOfDay, s.now())
	if err != nil {
		return time.Time{}, err
	}
	if err := s.repo.SetScheduleActive(ctx, id, true, next); err != nil {
		return time.Time{}, err
	}

	s.logger.Info("feeding schedule activated", zap.String("schedule_id", id), zap.Time("next_execution_at", next))
	return next, nil
}

func parseStructure(frequency, timeOfDay string) (models.Frequency, models.TimeOfDay, error) {
	freq, err := models.ParseFrequency(frequency)
	if err != nil {
		return "", models.TimeOfDay{}, err
	}
	tod, err := models.ParseTimeOfDay(timeOfDay)
	if err != nil {
		return "", models.TimeOfDay{}, err
	}
	return freq, tod, nil
}
