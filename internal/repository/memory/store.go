// Package memory is an in-process store with the same semantics as the MongoDB
// repository. It backs tests and the STORAGE_DRIVER=memory development mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// Store keeps schedules, food items, animals and batch reports in maps guarded by a mutex.
type Store struct {
	mu        sync.RWMutex
	schedules map[string]models.FeedingSchedule
	food      map[string]models.FoodItem
	animals   map[string]models.Animal
	reports   []models.BatchReport
	now       func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		schedules: make(map[string]models.FeedingSchedule),
		food:      make(map[string]models.FoodItem),
		animals:   make(map[string]models.Animal),
		now:       time.Now,
	}
}

// PutAnimal inserts or replaces an animal.
func (s *Store) PutAnimal(animal models.Animal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.animals[animal.ID] = animal
}

// FindAnimal resolves an animal reference.
func (s *Store) FindAnimal(_ context.Context, id string) (*models.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	animal, ok := s.animals[id]
	if !ok {
		return nil, fmt.Errorf("find animal %s: %w", id, models.ErrNotFound)
	}
	return &animal, nil
}

// InsertFood stores a new food item.
func (s *Store) InsertFood(_ context.Context, item models.FoodItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.food[item.ID]; exists {
		return fmt.Errorf("insert food item %s: %w: duplicate id", item.ID, models.ErrPersistence)
	}
	s.food[item.ID] = item
	return nil
}

// FindFood loads a food item by id.
func (s *Store) FindFood(_ context.Context, id string) (*models.FoodItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.food[id]
	if !ok {
		return nil, fmt.Errorf("find food item %s: %w", id, models.ErrNotFound)
	}
	return &item, nil
}

// ConsumeStock checks and decrements stock under one lock acquisition.
func (s *Store) ConsumeStock(_ context.Context, id string, amount float64) (models.FoodItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.food[id]
	if !ok {
		return models.FoodItem{}, fmt.Errorf("consume food item %s: %w", id, models.ErrNotFound)
	}
	if amount > item.CurrentStock {
		return models.FoodItem{}, &models.InsufficientStockError{
			FoodRef:   id,
			Requested: amount,
			Available: item.CurrentStock,
		}
	}

	item.CurrentStock -= amount
	item.UpdatedAt = s.now().UTC()
	s.food[id] = item
	return item, nil
}

// RestockFood increments stock.
func (s *Store) RestockFood(_ context.Context, id string, amount float64) (models.FoodItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.food[id]
	if !ok {
		return models.FoodItem{}, fmt.Errorf("restock food item %s: %w", id, models.ErrNotFound)
	}
	item.CurrentStock += amount
	item.UpdatedAt = s.now().UTC()
	s.food[id] = item
	return item, nil
}

// InsertSchedule stores a new feeding schedule.
func (s *Store) InsertSchedule(_ context.Context, schedule models.FeedingSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[schedule.ID]; exists {
		return fmt.Errorf("insert feeding schedule %s: %w: duplicate id", schedule.ID, models.ErrPersistence)
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

// FindSchedule loads a schedule by id.
func (s *Store) FindSchedule(_ context.Context, id string) (*models.FeedingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("find feeding schedule %s: %w", id, models.ErrNotFound)
	}
	return &schedule, nil
}

// ListDueSchedules returns active schedules with next execution at or before now, ordered by id.
func (s *Store) ListDueSchedules(_ context.Context, now time.Time) ([]models.FeedingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.FeedingSchedule
	for _, schedule := range s.schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// MarkExecuted records a successful execution.
func (s *Store) MarkExecuted(_ context.Context, id string, executedAt, next time.Time) error {
	return s.updateSchedule(id, func(schedule *models.FeedingSchedule) {
		at := executedAt
		schedule.LastExecutedAt = &at
		schedule.NextExecutionAt = next
	})
}

// UpdateScheduleStructure persists a frequency/time-of-day edit.
func (s *Store) UpdateScheduleStructure(_ context.Context, id string, freq models.Frequency, tod models.TimeOfDay, next time.Time) error {
	return s.updateSchedule(id, func(schedule *models.FeedingSchedule) {
		schedule.Frequency = freq
		schedule.TimeOfDay = tod
		schedule.NextExecutionAt = next
	})
}

// SetScheduleActive toggles a schedule. next is only written when activating.
func (s *Store) SetScheduleActive(_ context.Context, id string, active bool, next time.Time) error {
	return s.updateSchedule(id, func(schedule *models.FeedingSchedule) {
		schedule.Active = active
		if active {
			schedule.NextExecutionAt = next
		}
	})
}

func (s *Store) updateSchedule(id string, mutate func(*models.FeedingSchedule)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("update feeding schedule %s: %w", id, models.ErrNotFound)
	}
	mutate(&schedule)
	schedule.UpdatedAt = s.now().UTC()
	s.schedules[id] = schedule
	return nil
}

// SaveBatchReport keeps the report in memory.
func (s *Store) SaveBatchReport(_ context.Context, report models.BatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

// BatchReports returns a copy of the archived reports.
func (s *Store) BatchReports() []models.BatchReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BatchReport, len(s.reports))
	copy(out, s.reports)
	return out
}
