package reporting

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
	repo "github.com/mamadbah2/zoofeed/internal/repository/sheets"
	"github.com/mamadbah2/zoofeed/internal/timeanchor"
)

const (
	dateTimeLayout  = "2006-01-02 15:04"
	feedingLogRange = "FeedingLog!A:K"
	amountPrecision = 3
	emptyCell       = ""
)

// BatchArchive stores complete batch reports.
type BatchArchive interface {
	SaveBatchReport(ctx context.Context, report models.BatchReport) error
}

// Service archives batch reports and appends one feeding log row per execution.
// Either collaborator may be nil.
type Service struct {
	archive BatchArchive
	sheet   repo.Repository
	logger  *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(archive BatchArchive, sheet repo.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{archive: archive, sheet: sheet, logger: logger}
}

// HandleBatch persists the report. Both writes are attempted; their errors are joined.
func (s *Service) HandleBatch(ctx context.Context, report models.BatchReport) error {
	var errs []error

	if s.archive != nil {
		if err := s.archive.SaveBatchReport(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("archive batch %s: %w", report.ID, err))
		}
	}

	if s.sheet != nil {
		if err := s.sheet.AppendRows(ctx, feedingLogRange, FeedingLogRows(report)); err != nil {
			errs = append(errs, fmt.Errorf("append feeding log for batch %s: %w", report.ID, err))
		} else {
			s.logger.Debug("feeding log appended", zap.String("batch_id", report.ID), zap.Int("rows", len(report.Results)))
		}
	}

	return errors.Join(errs...)
}

// FeedingLogRows renders the sheet rows for a batch:
// date, batch, schedule, animal, food, state, reason, amount, remaining, next execution, error.
func FeedingLogRows(report models.BatchReport) [][]interface{} {
	rows := make([][]interface{}, 0, len(report.Results))
	executedAt := report.StartedAt.In(timeanchor.Civil).Format(dateTimeLayout)

	for _, r := range report.Results {
		next := emptyCell
		if r.NextExecutionAt != nil {
			next = r.NextExecutionAt.In(timeanchor.Civil).Format(dateTimeLayout)
		}
		rows = append(rows, []interface{}{
			executedAt,
			report.ID,
			r.ScheduleID,
			nameOrRef(r.AnimalName, r.AnimalRef),
			nameOrRef(r.FoodName, r.FoodRef),
			string(r.State),
			string(r.Reason),
			formatAmount(r.Amount),
			formatAmount(r.RemainingStock),
			next,
			r.Error,
		})
	}
	return rows
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', amountPrecision, 64)
}

func nameOrRef(name, ref string) string {
	if name != "" {
		return name
	}
	return ref
}
