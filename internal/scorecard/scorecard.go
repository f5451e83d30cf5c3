// Package scorecard is the aggregate-metrics collaborator: it receives
// per-category health fields, maintains named gauge metrics, and computes
// a single weighted 0-100 health score. Everything it tracks is also
// exported as prometheus gauges.
package scorecard

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Default category weights used by the health score. Categories reported
// but not listed here get WeightDefault.
var defaultWeights = map[string]float64{
	"services_status":        3,
	"agents_status":          2,
	"database_health":        2,
	"system_metrics":         1,
	"organizational_metrics": 1,
}

// WeightDefault applies to categories without a configured weight.
const WeightDefault = 1

// CategoryFields carries one category's health contribution.
type CategoryFields struct {
	Healthy int     `json:"healthy"`
	Total   int     `json:"total"`
	Ratio   float64 `json:"ratio"` // used when Total is 0
}

// Collector implements the collaborator contract: UpdateCategory,
// UpdateMetric, CalculateHealthScore.
type Collector struct {
	mu         sync.RWMutex
	categories map[string]CategoryFields
	metrics    map[string]float64
	weights    map[string]float64

	categoryRatio *prometheus.GaugeVec
	namedMetric   *prometheus.GaugeVec
	healthScore   prometheus.Gauge
}

// NewCollector creates a collector and registers its gauges.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		categories: make(map[string]CategoryFields),
		metrics:    make(map[string]float64),
		weights:    defaultWeights,
		categoryRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleetdeck",
			Name:      "category_healthy_ratio",
			Help:      "Healthy ratio per snapshot category (0-1).",
		}, []string{"category"}),
		namedMetric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleetdeck",
			Name:      "metric_value",
			Help:      "Named metric values reported by the synchronizer.",
		}, []string{"path"}),
		healthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleetdeck",
			Name:      "health_score",
			Help:      "Weighted overall health score (0-100).",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.categoryRatio, c.namedMetric, c.healthScore)
	}
	return c
}

// UpdateCategory records one category's health fields.
func (c *Collector) UpdateCategory(name string, fields CategoryFields) {
	c.mu.Lock()
	c.categories[name] = fields
	c.mu.Unlock()

	c.categoryRatio.WithLabelValues(name).Set(categoryRatio(fields))
	c.healthScore.Set(c.CalculateHealthScore())
}

// UpdateMetric records a single named metric value.
func (c *Collector) UpdateMetric(path string, value float64) {
	c.mu.Lock()
	c.metrics[path] = value
	c.mu.Unlock()

	c.namedMetric.WithLabelValues(path).Set(value)
}

// Metric returns a previously recorded metric value.
func (c *Collector) Metric(path string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metrics[path]
	return v, ok
}

// CalculateHealthScore computes the weighted 0-100 score over all reported
// categories. No categories means zero.
func (c *Collector) CalculateHealthScore() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var weighted, totalWeight float64
	for name, fields := range c.categories {
		weight, ok := c.weights[name]
		if !ok {
			weight = WeightDefault
		}
		weighted += categoryRatio(fields) * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}

	score := weighted / totalWeight * 100
	return math.Round(score*10) / 10
}

func categoryRatio(fields CategoryFields) float64 {
	if fields.Total > 0 {
		return float64(fields.Healthy) / float64(fields.Total)
	}
	if fields.Ratio < 0 {
		return 0
	}
	if fields.Ratio > 1 {
		return 1
	}
	return fields.Ratio
}
