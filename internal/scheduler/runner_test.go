package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
	"github.com/mamadbah2/zoofeed/internal/repository/memory"
	"github.com/mamadbah2/zoofeed/internal/service/ledger"
	"github.com/mamadbah2/zoofeed/internal/service/schedules"
	"github.com/mamadbah2/zoofeed/internal/timeanchor"
)

// --- mocks ---

// mockScheduleStore delegates to next unless a func field overrides the call.
type mockScheduleStore struct {
	next              ScheduleStore
	dueSchedulesFunc  func(ctx context.Context, now time.Time) ([]models.FeedingSchedule, error)
	recordSuccessFunc func(ctx context.Context, id string, executedAt, next time.Time) error
}

func (m *mockScheduleStore) DueSchedules(ctx context.Context, now time.Time) ([]models.FeedingSchedule, error) {
	if m.dueSchedulesFunc != nil {
		return m.dueSchedulesFunc(ctx, now)
	}
	return m.next.DueSchedules(ctx, now)
}

func (m *mockScheduleStore) RecordSuccess(ctx context.Context, id string, executedAt, next time.Time) error {
	if m.recordSuccessFunc != nil {
		return m.recordSuccessFunc(ctx, id, executedAt, next)
	}
	return m.next.RecordSuccess(ctx, id, executedAt, next)
}

type animalDirectoryFunc func(ctx context.Context, id string) (*models.Animal, error)

func (f animalDirectoryFunc) FindAnimal(ctx context.Context, id string) (*models.Animal, error) {
	return f(ctx, id)
}

// --- fixture ---

type fixture struct {
	store  *memory.Store
	svc    *schedules.Service
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutAnimal(models.Animal{ID: "lion", Name: "Kiara"})
	store.PutAnimal(models.Animal{ID: "tapir", Name: "Tito"})
	l := ledger.NewLedger(store, nil)
	return &fixture{
		store:  store,
		svc:    schedules.NewService(store, l, store, nil),
		ledger: l,
	}
}

func (f *fixture) food(t *testing.T, id string, stock float64) {
	t.Helper()
	if err := f.store.InsertFood(context.Background(), models.FoodItem{ID: id, Name: "food " + id, CurrentStock: stock, MinimumStock: 1}); err != nil {
		t.Fatalf("InsertFood error = %v", err)
	}
}

func (f *fixture) schedule(t *testing.T, s models.FeedingSchedule) {
	t.Helper()
	if s.AnimalRef == "" {
		s.AnimalRef = "lion"
	}
	s.Active = true
	if err := f.store.InsertSchedule(context.Background(), s); err != nil {
		t.Fatalf("InsertSchedule error = %v", err)
	}
}

func (f *fixture) stock(t *testing.T, id string) float64 {
	t.Helper()
	item, err := f.store.FindFood(context.Background(), id)
	if err != nil {
		t.Fatalf("FindFood error = %v", err)
	}
	return item.CurrentStock
}

func (f *fixture) runner(store ScheduleStore) *Runner {
	if store == nil {
		store = f.svc
	}
	return NewRunner(store, f.ledger, f.store, 4, nil)
}

func civil(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, timeanchor.Civil)
}

func resultFor(t *testing.T, report models.BatchReport, id string) models.ExecutionResult {
	t.Helper()
	for _, r := range report.Results {
		if r.ScheduleID == id {
			return r
		}
	}
	t.Fatalf("no result for schedule %s in %+v", id, report.Results)
	return models.ExecutionResult{}
}

// --- tests ---

func TestRunBatch_ConsumesAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F1", 5)
	f.schedule(t, models.FeedingSchedule{
		ID: "S1", FoodRef: "F1", Frequency: models.FrequencyDaily, QuantityPerPeriod: 5,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})
	now := civil(10, 9, 0)

	report, err := f.runner(nil).RunBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(report.Results))
	}

	r := report.Results[0]
	if r.State != models.StateConsumed || r.Amount != 5 {
		t.Errorf("result = %+v, want consumed 5", r)
	}
	if r.AnimalName != "Kiara" || r.FoodName != "food F1" {
		t.Errorf("names = %q/%q", r.AnimalName, r.FoodName)
	}
	if got := f.stock(t, "F1"); got != 0 {
		t.Errorf("stock = %v, want 0", got)
	}

	stored, _ := f.store.FindSchedule(context.Background(), "S1")
	wantNext := civil(11, 8, 0)
	if !stored.NextExecutionAt.Equal(wantNext) || r.NextExecutionAt == nil || !r.NextExecutionAt.Equal(wantNext) {
		t.Errorf("next = %v (result %v), want %v", stored.NextExecutionAt, r.NextExecutionAt, wantNext)
	}
	if stored.LastExecutedAt == nil || !stored.LastExecutedAt.Equal(now) {
		t.Errorf("LastExecutedAt = %v, want %v", stored.LastExecutedAt, now)
	}
	if !stored.NextExecutionAt.After(now) {
		t.Errorf("next execution %v not after now %v", stored.NextExecutionAt, now)
	}
}

func TestRunBatch_InsufficientStockKeepsScheduleDue(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F1", 5)
	f.schedule(t, models.FeedingSchedule{
		ID: "S1", FoodRef: "F1", Frequency: models.FrequencyDaily, QuantityPerPeriod: 5,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})
	runner := f.runner(nil)

	if _, err := runner.RunBatch(context.Background(), civil(10, 9, 0)); err != nil {
		t.Fatalf("first RunBatch error = %v", err)
	}

	// Next day, before any restock.
	now := civil(11, 9, 0)
	report, err := runner.RunBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("second RunBatch error = %v", err)
	}

	r := resultFor(t, report, "S1")
	if r.State != models.StateSkipped || r.Reason != models.SkipInsufficientStock {
		t.Fatalf("result = %+v, want skipped insufficient stock", r)
	}
	if !r.RetryPending || r.NextExecutionAt != nil {
		t.Errorf("RetryPending = %v, NextExecutionAt = %v", r.RetryPending, r.NextExecutionAt)
	}
	if r.Shortfall != 5 {
		t.Errorf("Shortfall = %v, want 5", r.Shortfall)
	}

	stored, _ := f.store.FindSchedule(context.Background(), "S1")
	if !stored.NextExecutionAt.Equal(civil(11, 8, 0)) {
		t.Errorf("NextExecutionAt = %v, want unchanged %v", stored.NextExecutionAt, civil(11, 8, 0))
	}

	due, err := f.svc.DueSchedules(context.Background(), now)
	if err != nil || len(due) != 1 || due[0].ID != "S1" {
		t.Errorf("DueSchedules = %v, %v; want S1 still due", due, err)
	}

	// After a restock the retry succeeds.
	if _, err := f.ledger.Restock(context.Background(), "F1", 5); err != nil {
		t.Fatalf("Restock error = %v", err)
	}
	report, err = runner.RunBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("third RunBatch error = %v", err)
	}
	if r := resultFor(t, report, "S1"); r.State != models.StateConsumed {
		t.Errorf("retry result = %+v, want consumed", r)
	}
}

func TestRunBatch_WeeklyAdvancesFromTodaysAnchor(t *testing.T) {
	for _, now := range []time.Time{civil(10, 7, 0), civil(10, 10, 0)} {
		f := newFixture(t)
		f.food(t, "F2", 10)
		f.schedule(t, models.FeedingSchedule{
			ID: "S2", FoodRef: "F2", Frequency: models.FrequencyWeekly, QuantityPerPeriod: 14,
			TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(3, 8, 0),
		})

		report, err := f.runner(nil).RunBatch(context.Background(), now)
		if err != nil {
			t.Fatalf("RunBatch error = %v", err)
		}

		r := resultFor(t, report, "S2")
		if r.State != models.StateConsumed || r.Amount != 2 {
			t.Fatalf("result = %+v, want consumed 2", r)
		}
		want := civil(17, 8, 0)
		if r.NextExecutionAt == nil || !r.NextExecutionAt.Equal(want) {
			t.Errorf("now %v: next = %v, want %v", now, r.NextExecutionAt, want)
		}
		if got := f.stock(t, "F2"); got != 8 {
			t.Errorf("stock = %v, want 8", got)
		}
	}
}

func TestRunBatch_DailyAnchorLaterTodayIsKept(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F3", 10)
	now := civil(10, 10, 0)
	f.schedule(t, models.FeedingSchedule{
		ID: "S3", FoodRef: "F3", Frequency: models.FrequencyDaily, QuantityPerPeriod: 1,
		TimeOfDay: models.TimeOfDay{Hour: 23}, NextExecutionAt: now.Add(-time.Minute),
	})

	report, err := f.runner(nil).RunBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}

	r := resultFor(t, report, "S3")
	want := civil(10, 23, 0)
	if r.NextExecutionAt == nil || !r.NextExecutionAt.Equal(want) {
		t.Errorf("next = %v, want %v", r.NextExecutionAt, want)
	}
}

func TestRunBatch_MixedOutcomes(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F1", 0)
	f.food(t, "F4", 10)
	f.schedule(t, models.FeedingSchedule{
		ID: "S1", FoodRef: "F1", Frequency: models.FrequencyDaily, QuantityPerPeriod: 5,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})
	f.schedule(t, models.FeedingSchedule{
		ID: "S4", AnimalRef: "tapir", FoodRef: "F4", Frequency: models.FrequencyEveryTwoDays, QuantityPerPeriod: 4,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})
	now := civil(10, 9, 0)

	report, err := f.runner(nil).RunBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}

	if r := resultFor(t, report, "S1"); r.State != models.StateSkipped || r.Reason != models.SkipInsufficientStock {
		t.Errorf("S1 = %+v, want skipped insufficient stock", r)
	}
	if r := resultFor(t, report, "S4"); r.State != models.StateConsumed || r.Amount != 2 {
		t.Errorf("S4 = %+v, want consumed 2", r)
	}

	s1, _ := f.store.FindSchedule(context.Background(), "S1")
	if s1.LastExecutedAt != nil || !s1.NextExecutionAt.Equal(civil(10, 8, 0)) {
		t.Errorf("S1 store state changed: %+v", s1)
	}
	s4, _ := f.store.FindSchedule(context.Background(), "S4")
	if s4.LastExecutedAt == nil || !s4.NextExecutionAt.Equal(civil(12, 8, 0)) {
		t.Errorf("S4 store state = %+v, want executed with next %v", s4, civil(12, 8, 0))
	}
}

func TestRunBatch_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F", 100)
	for i := 0; i < 5; i++ {
		s := models.FeedingSchedule{
			ID: fmt.Sprintf("S%d", i), FoodRef: "F", Frequency: models.FrequencyDaily, QuantityPerPeriod: 1,
			TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
		}
		switch i {
		case 1:
			s.AnimalRef = "ghost"
		case 3:
			s.FoodRef = "missing-food"
		}
		f.schedule(t, s)
	}

	report, err := f.runner(nil).RunBatch(context.Background(), civil(10, 9, 0))
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}

	for _, id := range []string{"S1", "S3"} {
		r := resultFor(t, report, id)
		if r.State != models.StateSkipped || r.Reason != models.SkipOtherError || r.Error == "" {
			t.Errorf("%s = %+v, want skipped other error", id, r)
		}
	}
	for _, id := range []string{"S0", "S2", "S4"} {
		if r := resultFor(t, report, id); r.State != models.StateConsumed {
			t.Errorf("%s = %+v, want consumed", id, r)
		}
	}
	if got := f.stock(t, "F"); got != 97 {
		t.Errorf("stock = %v, want 97", got)
	}
}

func TestRunBatch_RecordFailureReturnsStock(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F", 10)
	f.schedule(t, models.FeedingSchedule{
		ID: "S1", FoodRef: "F", Frequency: models.FrequencyDaily, QuantityPerPeriod: 3,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})
	store := &mockScheduleStore{
		next: f.svc,
		recordSuccessFunc: func(context.Context, string, time.Time, time.Time) error {
			return fmt.Errorf("write schedule: %w", models.ErrPersistence)
		},
	}

	report, err := f.runner(store).RunBatch(context.Background(), civil(10, 9, 0))
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}

	r := resultFor(t, report, "S1")
	if r.State != models.StateSkipped || r.Reason != models.SkipOtherError {
		t.Errorf("result = %+v, want skipped other error", r)
	}
	if got := f.stock(t, "F"); got != 10 {
		t.Errorf("stock = %v, want 10 after compensation", got)
	}
}

func TestRunBatch_DueLoadFailure(t *testing.T) {
	f := newFixture(t)
	store := &mockScheduleStore{
		dueSchedulesFunc: func(context.Context, time.Time) ([]models.FeedingSchedule, error) {
			return nil, models.ErrPersistence
		},
	}
	runner := f.runner(store)

	if _, err := runner.RunBatch(context.Background(), civil(10, 9, 0)); !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("error = %v, want ErrPersistence", err)
	}
	if runner.Running() {
		t.Error("Running() = true after failed batch")
	}
}

func TestRunBatch_RejectsOverlappingBatch(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &mockScheduleStore{
		dueSchedulesFunc: func(context.Context, time.Time) ([]models.FeedingSchedule, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}
	runner := f.runner(store)

	done := make(chan error, 1)
	go func() {
		_, err := runner.RunBatch(context.Background(), civil(10, 9, 0))
		done <- err
	}()
	<-entered

	if _, err := runner.RunBatch(context.Background(), civil(10, 9, 0)); !errors.Is(err, ErrBatchInProgress) {
		t.Errorf("overlapping RunBatch error = %v, want ErrBatchInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first RunBatch error = %v", err)
	}
	if runner.Running() {
		t.Error("Running() = true after batch finished")
	}
}

func TestRunBatch_ContendedFoodNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F", 10)
	for i := 0; i < 20; i++ {
		f.schedule(t, models.FeedingSchedule{
			ID: fmt.Sprintf("S%02d", i), FoodRef: "F", Frequency: models.FrequencyDaily, QuantityPerPeriod: 1,
			TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
		})
	}
	runner := NewRunner(f.svc, f.ledger, f.store, 8, nil)

	report, err := runner.RunBatch(context.Background(), civil(10, 9, 0))
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}

	if report.Consumed() != 10 {
		t.Errorf("consumed = %d, want 10", report.Consumed())
	}
	if report.Skipped()[models.SkipInsufficientStock] != 10 {
		t.Errorf("skipped = %v, want 10 insufficient stock", report.Skipped())
	}
	if got := f.stock(t, "F"); got != 0 {
		t.Errorf("stock = %v, want 0", got)
	}
}

func TestRunBatch_RecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F", 10)
	f.schedule(t, models.FeedingSchedule{
		ID: "S1", FoodRef: "F", Frequency: models.FrequencyDaily, QuantityPerPeriod: 1,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})
	animals := animalDirectoryFunc(func(context.Context, string) (*models.Animal, error) {
		panic("directory exploded")
	})
	runner := NewRunner(f.svc, f.ledger, animals, 1, nil)

	report, err := runner.RunBatch(context.Background(), civil(10, 9, 0))
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}
	if r := resultFor(t, report, "S1"); r.State != models.StateSkipped || r.Reason != models.SkipOtherError {
		t.Errorf("result = %+v, want skipped other error", r)
	}
}

func TestRunBatch_PanicAfterConsumeReturnsStock(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F", 10)
	f.schedule(t, models.FeedingSchedule{
		ID: "S1", FoodRef: "F", Frequency: models.FrequencyDaily, QuantityPerPeriod: 4,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})
	store := &mockScheduleStore{
		next: f.svc,
		recordSuccessFunc: func(context.Context, string, time.Time, time.Time) error {
			panic("schedule write exploded")
		},
	}
	runner := f.runner(store)
	now := civil(10, 9, 0)

	for i := 0; i < 2; i++ {
		report, err := runner.RunBatch(context.Background(), now)
		if err != nil {
			t.Fatalf("run %d: RunBatch error = %v", i, err)
		}
		r := resultFor(t, report, "S1")
		if r.State != models.StateSkipped || r.Reason != models.SkipOtherError || !r.RetryPending {
			t.Errorf("run %d: result = %+v, want skipped other error pending retry", i, r)
		}
		if got := f.stock(t, "F"); got != 10 {
			t.Errorf("run %d: stock = %v, want 10", i, got)
		}
	}
}

func TestRunBatch_FlagsLowStock(t *testing.T) {
	f := newFixture(t)
	f.food(t, "F", 1.5) // minimum is 1
	f.schedule(t, models.FeedingSchedule{
		ID: "S1", FoodRef: "F", Frequency: models.FrequencyDaily, QuantityPerPeriod: 1,
		TimeOfDay: models.TimeOfDay{Hour: 8}, NextExecutionAt: civil(10, 8, 0),
	})

	report, err := f.runner(nil).RunBatch(context.Background(), civil(10, 9, 0))
	if err != nil {
		t.Fatalf("RunBatch error = %v", err)
	}
	r := resultFor(t, report, "S1")
	if !r.BelowMinimum || r.RemainingStock != 0.5 {
		t.Errorf("result = %+v, want below minimum with 0.5 remaining", r)
	}
}
