package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// InsertFood stores a new food item.
func (r *MongoDBRepository) InsertFood(ctx context.Context, item models.FoodItem) error {
	if _, err := r.db.Collection(foodCollection).InsertOne(ctx, item); err != nil {
		return fmt.Errorf("insert food item %s: %w", item.ID, wrapPersistence(err))
	}
	return nil
}

// FindFood loads a food item by id.
func (r *MongoDBRepository) FindFood(ctx context.Context, id string) (*models.FoodItem, error) {
	var item models.FoodItem
	err := r.db.Collection(foodCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		return nil, fmt.Errorf("find food item %s: %w", id, wrapPersistence(err))
	}
	return &item, nil
}

// consumeRetries bounds how often a guard miss is retried when the re-read
// shows a concurrent restock already covering the amount.
const consumeRetries = 1

// ConsumeStock decrements current_stock in a single conditional update. The
// filter only matches when enough stock is on hand, so concurrent consumers
// of the same item are serialized by the server and stock never goes negative.
//
// On a guard miss the item is re-read to tell a missing item (ErrNotFound)
// from a short one (*models.InsufficientStockError). If a restock landed in
// between and the item now covers the amount, the update is retried once; a
// miss after that is still reported as insufficient stock, possibly with
// Available >= Requested.
func (r *MongoDBRepository) ConsumeStock(ctx context.Context, id string, amount float64) (models.FoodItem, error) {
	filter := bson.M{
		"_id":           id,
		"current_stock": bson.M{"$gte": amount},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; ; attempt++ {
		update := bson.M{
			"$inc": bson.M{"current_stock": -amount},
			"$set": bson.M{"updated_at": r.now().UTC()},
		}

		var item models.FoodItem
		err := r.db.Collection(foodCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&item)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return models.FoodItem{}, fmt.Errorf("consume food item %s: %w", id, wrapPersistence(err))
		}

		current, findErr := r.FindFood(ctx, id)
		if findErr != nil {
			return models.FoodItem{}, findErr
		}
		if current.CurrentStock < amount || attempt >= consumeRetries {
			return models.FoodItem{}, &models.InsufficientStockError{
				FoodRef:   id,
				Requested: amount,
				Available: current.CurrentStock,
			}
		}

		r.logger.Debug("stock restocked during consume, retrying",
			zap.String("food_ref", id),
			zap.Float64("amount", amount),
			zap.Float64("current_stock", current.CurrentStock))
	}
}

// RestockFood increments current_stock atomically.
func (r *MongoDBRepository) RestockFood(ctx context.Context, id string, amount float64) (models.FoodItem, error) {
	update := bson.M{
		"$inc": bson.M{"current_stock": amount},
		"$set": bson.M{"updated_at": r.now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var item models.FoodItem
	err := r.db.Collection(foodCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&item)
	if err != nil {
		return models.FoodItem{}, fmt.Errorf("restock food item %s: %w", id, wrapPersistence(err))
	}
	return item, nil
}
