package mongodb

import (
	"context"
	"fmt"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// SaveBatchReport archives the outcome of one feeding batch.
func (r *MongoDBRepository) SaveBatchReport(ctx context.Context, report models.BatchReport) error {
	if _, err := r.db.Collection(reportsCollection).InsertOne(ctx, report); err != nil {
		return fmt.Errorf("failed to insert batch report: %w", wrapPersistence(err))
	}
	return nil
}
