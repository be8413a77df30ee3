// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// pass.MetricsRecorderとsweep.MetricsRecorderの両方を満たす。
type Collector struct {
	passesIssued       *prometheus.CounterVec
	passesReturned     *prometheus.CounterVec
	overdueTransitions prometheus.Counter
	notifyFailures     prometheus.Counter
	sweepDuration      prometheus.Histogram
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		passesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passman_passes_issued_total",
			Help: "発行されたパスの合計数（行き先別）",
		}, []string{"destination"}),
		passesReturned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passman_passes_returned_total",
			Help: "返却されたパスの合計数（期限超過の有無別）",
		}, []string{"was_overdue"}),
		overdueTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passman_overdue_transitions_total",
			Help: "overdueへ遷移したパスの合計数",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passman_notify_failures_total",
			Help: "期限超過通知の送信失敗の合計数",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "passman_sweep_duration_seconds",
			Help:    "期限超過スイープ1回の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.passesIssued,
		c.passesReturned,
		c.overdueTransitions,
		c.notifyFailures,
		c.sweepDuration,
		c.httpStatus,
	)

	return c
}

// RecordPassIssued はパス発行を記録する。
func (c *Collector) RecordPassIssued(destination string) {
	c.passesIssued.WithLabelValues(destination).Inc()
}

// RecordPassReturned はパス返却を記録する。
func (c *Collector) RecordPassReturned(wasOverdue bool) {
	c.passesReturned.WithLabelValues(strconv.FormatBool(wasOverdue)).Inc()
}

// RecordOverdueTransition はoverdueへの遷移を記録する。
func (c *Collector) RecordOverdueTransition() {
	c.overdueTransitions.Inc()
}

// RecordNotifyFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotifyFailure() {
	c.notifyFailures.Inc()
}

// RecordSweepDuration はスイープの所要時間を記録する。
func (c *Collector) RecordSweepDuration(duration time.Duration) {
	c.sweepDuration.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
