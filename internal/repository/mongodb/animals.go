package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// FindAnimal resolves an animal reference. Only the fields needed for reporting are projected.
func (r *MongoDBRepository) FindAnimal(ctx context.Context, id string) (*models.Animal, error) {
	opts := options.FindOne().SetProjection(bson.M{"name": 1, "species": 1})

	var animal models.Animal
	err := r.db.Collection(animalsCollection).FindOne(ctx, bson.M{"_id": id}, opts).Decode(&animal)
	if err != nil {
		return nil, fmt.Errorf("find animal %s: %w", id, wrapPersistence(err))
	}
	return &animal, nil
}
