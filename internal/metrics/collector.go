// =============================================================================
// 📊 指标收集器
// =============================================================================
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 收集自检与驱动链路的指标
type Collector struct {
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec

	generationsTotal   *prometheus.CounterVec
	generationDuration prometheus.Histogram

	detectionsTotal *prometheus.CounterVec
	detectionBoxes  prometheus.Histogram

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.probesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of provider health probes",
		},
		[]string{"provider", "status"},
	)

	c.probeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Provider health probe duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	c.generationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of code generation runs",
		},
		[]string{"status"},
	)

	c.generationDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Code generation duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	c.detectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Total number of detection runs",
		},
		[]string{"status", "source"},
	)

	c.detectionBoxes = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_boxes",
			Help:      "Number of boxes returned per detection run",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	return c
}

// RecordProbe 记录一次连通性探测
func (c *Collector) RecordProbe(provider string, healthy bool, latency time.Duration) {
	status := "ok"
	if !healthy {
		status = "fail"
	}
	c.probesTotal.WithLabelValues(provider, status).Inc()
	c.probeDuration.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordGeneration 记录一次代码生成
func (c *Collector) RecordGeneration(err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "fail"
	}
	c.generationsTotal.WithLabelValues(status).Inc()
	c.generationDuration.Observe(duration.Seconds())
}

// RecordDetection 记录一次检测。source 区分真实上游与兜底结果。
func (c *Collector) RecordDetection(err error, source string, boxes int) {
	status := "ok"
	if err != nil {
		status = "fail"
	}
	c.detectionsTotal.WithLabelValues(status, source).Inc()
	if err == nil {
		c.detectionBoxes.Observe(float64(boxes))
	}
}
