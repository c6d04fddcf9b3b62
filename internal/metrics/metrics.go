// Package metrics exposes Prometheus instrumentation for feeding batches.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// Collector records batch outcomes.
type Collector struct {
	batches       prometheus.Counter
	executions    *prometheus.CounterVec
	consumed      *prometheus.CounterVec
	lowStock      *prometheus.GaugeVec
	batchDuration prometheus.Histogram
}

// NewCollector builds a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zoofeed_batches_total",
			Help: "Feeding batches that processed at least one due schedule.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zoofeed_executions_total",
			Help: "Feeding executions by terminal state and skip reason.",
		}, []string{"state", "reason"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zoofeed_stock_consumed_total",
			Help: "Quantity of food consumed by scheduled feedings.",
		}, []string{"food_ref"}),
		lowStock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zoofeed_food_below_minimum",
			Help: "1 when the last feeding left the food item below its minimum stock.",
		}, []string{"food_ref"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zoofeed_batch_duration_seconds",
			Help:    "Wall time of feeding batches.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.batches, c.executions, c.consumed, c.lowStock, c.batchDuration)
	return c
}

// HandleBatch records a completed batch.
func (c *Collector) HandleBatch(_ context.Context, report models.BatchReport) error {
	c.batches.Inc()
	c.batchDuration.Observe(report.Duration().Seconds())

	for _, r := range report.Results {
		c.executions.WithLabelValues(string(r.State), string(r.Reason)).Inc()
		if !r.Consumed() {
			continue
		}
		c.consumed.WithLabelValues(r.FoodRef).Add(r.Amount)
		if r.BelowMinimum {
			c.lowStock.WithLabelValues(r.FoodRef).Set(1)
		} else {
			c.lowStock.WithLabelValues(r.FoodRef).Set(0)
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
