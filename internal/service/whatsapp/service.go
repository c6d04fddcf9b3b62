package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
	"github.com/mamadbah2/zoofeed/internal/timeanchor"
	client "github.com/mamadbah2/zoofeed/pkg/clients/whatsapp"
)

const (
	sendTimeout = 10 * time.Second
	timeLayout  = "2006-01-02 15:04"
)

// AlertService notifies keepers about skipped feedings and low stock after each batch.
type AlertService struct {
	client    client.Client
	recipient string
	logger    *zap.Logger
}

// NewAlertService wires a new alert service instance.
func NewAlertService(c client.Client, recipient string, logger *zap.Logger) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{client: c, recipient: recipient, logger: logger}
}

// HandleBatch sends one message summarising the batch when something needs attention.
func (s *AlertService) HandleBatch(ctx context.Context, report models.BatchReport) error {
	body := FormatAlert(report)
	if body == "" {
		return nil
	}
	if s.recipient == "" {
		return errors.New("alert recipient is not configured")
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:   s.recipient,
		Body: body,
	}); err != nil {
		return fmt.Errorf("send feeding alert: %w", err)
	}

	s.logger.Info("feeding alert sent", zap.String("batch_id", report.ID))
	return nil
}

// FormatAlert renders the skipped executions and low-stock warnings of a batch.
// It returns an empty string when there is nothing to report.
func FormatAlert(report models.BatchReport) string {
	var skipped, low []string
	lowSeen := make(map[string]bool)

	for _, r := range report.Results {
		switch {
		case r.State == models.StateSkipped && r.Reason == models.SkipInsufficientStock:
			skipped = append(skipped, fmt.Sprintf("- %s: not enough %s (needs %.2f, short %.2f)",
				displayName(r.AnimalName, r.AnimalRef), displayName(r.FoodName, r.FoodRef), r.Amount, r.Shortfall))
		case r.State == models.StateSkipped:
			skipped = append(skipped, fmt.Sprintf("- %s: %s",
				displayName(r.AnimalName, r.AnimalRef), r.Error))
		case r.BelowMinimum && !lowSeen[r.FoodRef]:
			lowSeen[r.FoodRef] = true
			low = append(low, fmt.Sprintf("- %s: %.2f left", displayName(r.FoodName, r.FoodRef), r.RemainingStock))
		}
	}

	if len(skipped) == 0 && len(low) == 0 {
		return ""
	}
	sort.Strings(skipped)
	sort.Strings(low)

	var b strings.Builder
	fmt.Fprintf(&b, "Feeding batch %s\n", report.StartedAt.In(timeanchor.Civil).Format(timeLayout))
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "Skipped feedings (%d), will retry next run:\n%s\n", len(skipped), strings.Join(skipped, "\n"))
	}
	if len(low) > 0 {
		fmt.Fprintf(&b, "Below minimum stock:\n%s\n", strings.Join(low, "\n"))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func displayName(name, ref string) string {
	if name != "" {
		return name
	}
	return ref
}
