package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
	"github.com/mamadbah2/zoofeed/internal/scheduler"
	"github.com/mamadbah2/zoofeed/internal/service/schedules"
)

// ScheduleService is the schedule lifecycle used by the HTTP layer.
type ScheduleService interface {
	Create(ctx context.Context, in schedules.CreateInput) (models.FeedingSchedule, error)
	RecordStructuralChange(ctx context.Context, id, frequency, timeOfDay string) (time.Time, error)
	Deactivate(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) (time.Time, error)
}

// StockService is the ledger operation exposed for manual restocking.
type StockService interface {
	Restock(ctx context.Context, foodRef string, amount float64) (models.FoodItem, error)
}

// BatchTrigger runs a feeding batch on demand.
type BatchTrigger interface {
	RunNow(ctx context.Context) (models.BatchReport, error)
}

// FeedingHandler exposes the feeding scheduler operations over HTTP.
type FeedingHandler struct {
	schedules ScheduleService
	stock     StockService
	trigger   BatchTrigger
	logger    *zap.Logger
}

// NewFeedingHandler constructs the HTTP handler adapter.
func NewFeedingHandler(schedules ScheduleService, stock StockService, trigger BatchTrigger, logger *zap.Logger) *FeedingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedingHandler{schedules: schedules, stock: stock, trigger: trigger, logger: logger}
}

type structureRequest struct {
	Frequency string `json:"frequency" binding:"required"`
	TimeOfDay string `json:"time_of_day" binding:"required"`
}

type restockRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// CreateSchedule validates and stores a new feeding schedule.
func (h *FeedingHandler) CreateSchedule(c *gin.Context) {
	var req schedules.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid schedule payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	schedule, err := h.schedules.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "failed creating feeding schedule", err)
		return
	}

	c.JSON(http.StatusCreated, schedule)
}

// ChangeStructure edits a schedule's frequency and time of day.
func (h *FeedingHandler) ChangeStructure(c *gin.Context) {
	var req structureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid structure payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	next, err := h.schedules.RecordStructuralChange(c.Request.Context(), c.Param("id"), req.Frequency, req.TimeOfDay)
	if err != nil {
		h.respondError(c, "failed changing feeding schedule", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "next_execution_at": next})
}

// Deactivate stops a schedule from being selected as due.
func (h *FeedingHandler) Deactivate(c *gin.Context) {
	if err := h.schedules.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "failed deactivating feeding schedule", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Activate re-enables a schedule.
func (h *FeedingHandler) Activate(c *gin.Context) {
	next, err := h.schedules.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed activating feeding schedule", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "next_execution_at": next})
}

// Restock adds stock to a food item through the ledger.
func (h *FeedingHandler) Restock(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid restock payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	item, err := h.stock.Restock(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		h.respondError(c, "failed restocking food item", err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// RunBatch triggers a feeding batch immediately.
func (h *FeedingHandler) RunBatch(c *gin.Context) {
	report, err := h.trigger.RunNow(c.Request.Context())
	if err != nil {
		h.respondError(c, "failed running feeding batch", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       report.ID,
		"consumed": report.Consumed(),
		"skipped":  report.Skipped(),
		"results":  report.Results,
	})
}

func (h *FeedingHandler) respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	h.logger.Warn(msg, zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientStock), errors.Is(err, scheduler.ErrBatchInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
