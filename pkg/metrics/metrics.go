// Package metrics 定义服务暴露给 Prometheus 的指标。
//
// 所有方法对 nil *Metrics 都是安全的，未启用指标的组件可以直接传 nil。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有独立的 registry，避免与全局默认 registry 相互污染。
type Metrics struct {
	registry     *prometheus.Registry
	stageSeconds *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	catalogSize  prometheus.Gauge
}

// New 创建指标集合，并注册 Go 运行时与进程指标。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medimate_pipeline_stage_seconds",
			Help:    "Latency of each prescription pipeline stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medimate_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"path", "status"}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medimate_catalog_index_entries",
			Help: "Number of entries in the catalog index.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageSeconds,
		m.requests,
		m.catalogSize,
	)
	return m
}

// ObserveStage 记录一个流水线阶段的耗时。
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// IncRequest 记录一次 HTTP 请求。
func (m *Metrics) IncRequest(path string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// SetCatalogSize 更新目录索引的条目数。
func (m *Metrics) SetCatalogSize(n int) {
	if m == nil {
		return
	}
	m.catalogSize.Set(float64(n))
}

// Handler 返回供 Prometheus 抓取的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
