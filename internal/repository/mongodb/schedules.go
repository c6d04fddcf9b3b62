package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// InsertSchedule stores a new feeding schedule.
func (r *MongoDBRepository) InsertSchedule(ctx context.Context, schedule models.FeedingSchedule) error {
	if _, err := r.db.Collection(schedulesCollection).InsertOne(ctx, schedule); err != nil {
		return fmt.Errorf("insert feeding schedule %s: %w", schedule.ID, wrapPersistence(err))
	}
	return nil
}

// FindSchedule loads a schedule by id.
func (r *MongoDBRepository) FindSchedule(ctx context.Context, id string) (*models.FeedingSchedule, error) {
	var schedule models.FeedingSchedule
	err := r.db.Collection(schedulesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&schedule)
	if err != nil {
		return nil, fmt.Errorf("find feeding schedule %s: %w", id, wrapPersistence(err))
	}
	return &schedule, nil
}

// ListDueSchedules returns active schedules whose next execution is at or before now.
func (r *MongoDBRepository) ListDueSchedules(ctx context.Context, now time.Time) ([]models.FeedingSchedule, error) {
	filter := bson.M{
		"active":            true,
		"next_execution_at": bson.M{"$lte": now},
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.db.Collection(schedulesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", wrapPersistence(err))
	}
	defer cursor.Close(ctx)

	var schedules []models.FeedingSchedule
	if err := cursor.All(ctx, &schedules); err != nil {
		return nil, fmt.Errorf("decode due schedules: %w", wrapPersistence(err))
	}
	return schedules, nil
}

// MarkExecuted records a successful execution.
func (r *MongoDBRepository) MarkExecuted(ctx context.Context, id string, executedAt, next time.Time) error {
	return r.updateSchedule(ctx, id, bson.M{
		"last_executed_at":  executedAt,
		"next_execution_at": next,
	})
}

// UpdateScheduleStructure persists a frequency/time-of-day edit with its recomputed next execution.
func (r *MongoDBRepository) UpdateScheduleStructure(ctx context.Context, id string, freq models.Frequency, tod models.TimeOfDay, next time.Time) error {
	return r.updateSchedule(ctx, id, bson.M{
		"frequency":         freq,
		"time_of_day":       tod,
		"next_execution_at": next,
	})
}

// SetScheduleActive toggles a schedule. next is only written when activating.
func (r *MongoDBRepository) SetScheduleActive(ctx context.Context, id string, active bool, next time.Time) error {
	fields := bson.M{"active": active}
	if active {
		fields["next_execution_at"] = next
	}
	return r.updateSchedule(ctx, id, fields)
}

func (r *MongoDBRepository) updateSchedule(ctx context.Context, id string, fields bson.M) error {
	fields["updated_at"] = r.now().UTC()

	res, err := r.db.Collection(schedulesCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update feeding schedule %s: %w", id, wrapPersistence(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update feeding schedule %s: %w", id, models.ErrNotFound)
	}
	return nil
}
