// Package metrics はフォトブースのPrometheusメトリクスを提供する
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photobooth"

// Metrics はセッションと合成の統計を保持する
//
// session.Recorderを実装する。インスタンスごとに独立したレジストリを持つ。
type Metrics struct {
	registry *prometheus.Registry

	sessionsTotal   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionDuration prometheus.Histogram
	shotsTotal      prometheus.Counter
	composites      *prometheus.CounterVec
	composeDuration prometheus.Histogram
}

// New はメトリクスを作成してレジストリに登録する
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of capture sessions by result",
			},
			[]string{"result"}, // result: started, completed, failed
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of capture sessions currently running",
			},
		),
		sessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of completed capture sessions in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 30, 60},
			},
		),
		shotsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shots_total",
				Help:      "Total number of stills captured",
			},
		),
		composites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "composites_total",
				Help:      "Total number of composite images built",
			},
			[]string{"template", "status"}, // status: success, error
		),
		composeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compose_duration_seconds",
				Help:      "Duration of composite image builds in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
	}

	m.registry.MustRegister(
		m.sessionsTotal,
		m.sessionsActive,
		m.sessionDuration,
		m.shotsTotal,
		m.composites,
		m.composeDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry は内部のレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は/metrics用のHTTPハンドラーを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) SessionStarted() {
	m.sessionsTotal.WithLabelValues("started").Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionCompleted(elapsed time.Duration) {
	m.sessionsTotal.WithLabelValues("completed").Inc()
	m.sessionsActive.Dec()
	m.sessionDuration.Observe(elapsed.Seconds())
}

// SessionFailed は失敗を数える。理由はラベルにせずログに任せる
func (m *Metrics) SessionFailed(_ string) {
	m.sessionsTotal.WithLabelValues("failed").Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) ShotCaptured() {
	m.shotsTotal.Inc()
}

// ObserveCompose は合成1回分の結果を記録する
func (m *Metrics) ObserveCompose(template string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.composites.WithLabelValues(template, status).Inc()
	if err == nil {
		m.composeDuration.Observe(elapsed.Seconds())
	}
}
