// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordApplicationSubmitted()
	RecordStageTransition(stageName string)
	RecordNotification(kind string)
	RecordDelivery(channel string, ok bool)
	RecordVerification(channel string, result string)
	RecordJobsExpired(count int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	applications     prometheus.Counter
	stageTransitions *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	jobsExpired      prometheus.Counter
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		applications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobboard_applications_submitted_total",
			Help: "受け付けた応募の合計数",
		}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_stage_transitions_total",
			Help: "移動先ステージ別のステージ遷移数",
		}, []string{"stage"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_notifications_total",
			Help: "種別ごとの作成された通知数",
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_deliveries_total",
			Help: "チャネル・結果別のメール/SMS送信数",
		}, []string{"channel", "result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_verifications_total",
			Help: "チャネル・結果別の本人確認の試行数",
		}, []string{"channel", "result"}),
		jobsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobboard_jobs_expired_total",
			Help: "期限切れで掲載停止した求人の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobboard_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.applications,
		c.stageTransitions,
		c.notifications,
		c.deliveries,
		c.verifications,
		c.jobsExpired,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordApplicationSubmitted は応募の受付を記録する。
func (c *Collector) RecordApplicationSubmitted() {
	c.applications.Inc()
}

// RecordStageTransition はステージ遷移を記録する。
func (c *Collector) RecordStageTransition(stageName string) {
	c.stageTransitions.WithLabelValues(stageName).Inc()
}

// RecordNotification は通知の作成を記録する。
func (c *Collector) RecordNotification(kind string) {
	c.notifications.WithLabelValues(kind).Inc()
}

// RecordDelivery はメール/SMSの送信結果を記録する。
func (c *Collector) RecordDelivery(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.deliveries.WithLabelValues(channel, result).Inc()
}

// RecordVerification は本人確認の結果を記録する。
func (c *Collector) RecordVerification(channel string, result string) {
	c.verifications.WithLabelValues(channel, result).Inc()
}

// RecordJobsExpired は掲載停止した求人数を記録する。
func (c *Collector) RecordJobsExpired(count int) {
	c.jobsExpired.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordApplicationSubmitted()        {}
func (Nop) RecordStageTransition(string)       {}
func (Nop) RecordNotification(string)          {}
func (Nop) RecordDelivery(string, bool)        {}
func (Nop) RecordVerification(string, string)  {}
func (Nop) RecordJobsExpired(int)              {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
