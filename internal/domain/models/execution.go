package models

import "time"

// ExecutionState tracks one schedule through a batch: Due -> Computing -> terminal.
type ExecutionState string

const (
	StateDue       ExecutionState = "due"
	StateComputing ExecutionState = "computing"
	StateConsumed  ExecutionState = "consumed"
	StateSkipped   ExecutionState = "skipped"
)

// Terminal reports whether no further transition is possible within the batch.
func (s ExecutionState) Terminal() bool {
	return s == StateConsumed || s == StateSkipped
}

// SkipReason explains why a skipped execution did not consume stock.
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipInsufficientStock SkipReason = "insufficient_stock"
	SkipOtherError        SkipReason = "other_error"
)

// ExecutionResult is the terminal record of one schedule within a batch.
type ExecutionResult struct {
	ScheduleID      string         `bson:"schedule_id" json:"schedule_id"`
	AnimalRef       string         `bson:"animal_ref" json:"animal_ref"`
	AnimalName      string         `bson:"animal_name,omitempty" json:"animal_name,omitempty"`
	FoodRef         string         `bson:"food_ref" json:"food_ref"`
	FoodName        string         `bson:"food_name,omitempty" json:"food_name,omitempty"`
	State           ExecutionState `bson:"state" json:"state"`
	Reason          SkipReason     `bson:"reason,omitempty" json:"reason,omitempty"`
	Amount          float64        `bson:"amount" json:"amount"`
	Shortfall       float64        `bson:"shortfall,omitempty" json:"shortfall,omitempty"`
	RemainingStock  float64        `bson:"remaining_stock,omitempty" json:"remaining_stock,omitempty"`
	BelowMinimum    bool           `bson:"below_minimum,omitempty" json:"below_minimum,omitempty"`
	NextExecutionAt *time.Time     `bson:"next_execution_at,omitempty" json:"next_execution_at,omitempty"`
	// RetryPending is set on skipped results: nextExecutionAt was left untouched so the
	// schedule stays due and is picked up again on the following batch.
	RetryPending bool   `bson:"retry_pending" json:"retry_pending"`
	Error        string `bson:"error,omitempty" json:"error,omitempty"`
}

// Consumed reports whether the execution decremented stock and advanced the schedule.
func (r ExecutionResult) Consumed() bool {
	return r.State == StateConsumed
}

// BatchReport aggregates the results of one runner invocation.
type BatchReport struct {
	ID         string            `bson:"_id" json:"id"`
	StartedAt  time.Time         `bson:"started_at" json:"started_at"`
	FinishedAt time.Time         `bson:"finished_at" json:"finished_at"`
	Results    []ExecutionResult `bson:"results" json:"results"`
}

// Consumed counts successful executions.
func (b BatchReport) Consumed() int {
	n := 0
	for _, r := range b.Results {
		if r.Consumed() {
			n++
		}
	}
	return n
}

// Skipped counts executions that did not consume, grouped by reason.
func (b BatchReport) Skipped() map[SkipReason]int {
	out := make(map[SkipReason]int)
	for _, r := range b.Results {
		if r.State == StateSkipped {
			out[r.Reason]++
		}
	}
	return out
}

// Duration is the wall time the batch took.
func (b BatchReport) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}
