package models

import "time"

// FeedingSchedule is a recurring instruction to feed an animal from a food item's stock.
type FeedingSchedule struct {
	ID                string     `bson:"_id" json:"id"`
	AnimalRef         string     `bson:"animal_ref" json:"animal_ref"`
	FoodRef           string     `bson:"food_ref" json:"food_ref"`
	TimeOfDay         TimeOfDay  `bson:"time_of_day" json:"time_of_day"`
	Frequency         Frequency  `bson:"frequency" json:"frequency"`
	QuantityPerPeriod float64    `bson:"quantity_per_period" json:"quantity_per_period"`
	Active            bool       `bson:"active" json:"active"`
	LastExecutedAt    *time.Time `bson:"last_executed_at,omitempty" json:"last_executed_at,omitempty"`
	NextExecutionAt   time.Time  `bson:"next_execution_at" json:"next_execution_at"`
	Notes             string     `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at" json:"updated_at"`
}

// PerExecutionAmount is the quantity consumed each time the schedule runs.
func (s FeedingSchedule) PerExecutionAmount() (float64, error) {
	return s.Frequency.PerExecutionAmount(s.QuantityPerPeriod)
}

// IsDue reports whether the schedule should run at now.
func (s FeedingSchedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextExecutionAt.After(now)
}

// FoodItem is the ledger entry for a stocked food.
type FoodItem struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Unit         string    `bson:"unit,omitempty" json:"unit,omitempty"`
	CurrentStock float64   `bson:"current_stock" json:"current_stock"`
	MinimumStock float64   `bson:"minimum_stock" json:"minimum_stock"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// BelowMinimum reports whether stock has dropped under the advisory threshold.
func (f FoodItem) BelowMinimum() bool {
	return f.CurrentStock < f.MinimumStock
}

// Animal is the subset of the animal record the scheduler needs for reporting.
type Animal struct {
	ID      string `bson:"_id" json:"id"`
	Name    string `bson:"name" json:"name"`
	Species string `bson:"species,omitempty" json:"species,omitempty"`
}
