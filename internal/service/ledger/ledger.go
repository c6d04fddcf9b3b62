package ledger

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// Store is the persistence contract the ledger needs. ConsumeStock must apply
// its check and decrement as one atomic operation per food item.
type Store interface {
	FindFood(ctx context.Context, id string) (*models.FoodItem, error)
	ConsumeStock(ctx context.Context, id string, amount float64) (models.FoodItem, error)
	RestockFood(ctx context.Context, id string, amount float64) (models.FoodItem, error)
}

// Ledger is the single entry point for mutating food stock.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

// NewLedger wires a Ledger over the given store.
func NewLedger(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// Consume removes amount from the item's stock and returns the updated item.
// A request larger than the stock on hand fails with *models.InsufficientStockError
// and leaves the stock untouched.
func (l *Ledger) Consume(ctx context.Context, foodRef string, amount float64) (models.FoodItem, error) {
	if err := validateAmount(amount); err != nil {
		return models.FoodItem{}, err
	}

	item, err := l.store.ConsumeStock(ctx, foodRef, amount)
	if err != nil {
		return models.FoodItem{}, err
	}

	l.logger.Debug("stock consumed",
		zap.String("food_ref", foodRef),
		zap.Float64("amount", amount),
		zap.Float64("remaining", item.CurrentStock))
	return item, nil
}

// Restock adds amount to the item's stock.
func (l *Ledger) Restock(ctx context.Context, foodRef string, amount float64) (models.FoodItem, error) {
	if err := validateAmount(amount); err != nil {
		return models.FoodItem{}, err
	}

	item, err := l.store.RestockFood(ctx, foodRef, amount)
	if err != nil {
		return models.FoodItem{}, err
	}

	l.logger.Info("stock replenished",
		zap.String("food_ref", foodRef),
		zap.Float64("amount", amount),
		zap.Float64("current", item.CurrentStock))
	return item, nil
}

// Item reads the current ledger entry.
func (l *Ledger) Item(ctx context.Context, foodRef string) (*models.FoodItem, error) {
	return l.store.FindFood(ctx, foodRef)
}

func validateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return models.NewValidationError("amount", fmt.Sprintf("must be a positive number, got %v", amount))
	}
	return nil
}
