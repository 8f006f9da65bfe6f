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
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordAttendance(method, attendanceType string)
	RecordAttendanceRejected(reason string)
	RecordScanningTransition(action string)
	RecordSessionSuperseded()
	RecordSessionsSwept(count int)
	SetActiveSessions(count int)
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	attendanceRecorded  *prometheus.CounterVec
	attendanceRejected  *prometheus.CounterVec
	scanningTransitions *prometheus.CounterVec
	sessionsSuperseded  prometheus.Counter
	sessionsSwept       prometheus.Counter
	activeSessions      prometheus.Gauge
	httpStatus          *prometheus.CounterVec
	requestDuration     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attendanceRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ongdesk_attendance_recorded_total",
			Help: "登録経路・種別ごとの出席記録数",
		}, []string{"method", "type"}),
		attendanceRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ongdesk_attendance_rejected_total",
			Help: "理由ごとの出席記録の拒否数",
		}, []string{"reason"}),
		scanningTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ongdesk_scanning_transitions_total",
			Help: "スキャン開始・停止の回数",
		}, []string{"action"}),
		sessionsSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ongdesk_sessions_superseded_total",
			Help: "再ログインで無効化されたトークンによるリクエスト数",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ongdesk_sessions_swept_total",
			Help: "アイドル期限切れで削除されたセッション数",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ongdesk_active_sessions",
			Help: "セッションレジストリが保持しているセッション数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ongdesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ongdesk_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.attendanceRecorded,
		c.attendanceRejected,
		c.scanningTransitions,
		c.sessionsSuperseded,
		c.sessionsSwept,
		c.activeSessions,
		c.httpStatus,
		c.requestDuration,
	)

	return c
}

// RecordAttendance は出席記録の作成を記録する。
func (c *Collector) RecordAttendance(method, attendanceType string) {
	c.attendanceRecorded.WithLabelValues(method, attendanceType).Inc()
}

// RecordAttendanceRejected は出席記録の拒否を記録する。reasonにはエラーコードを渡す。
func (c *Collector) RecordAttendanceRejected(reason string) {
	c.attendanceRejected.WithLabelValues(reason).Inc()
}

// RecordScanningTransition はスキャンの開始(start)・停止(stop)を記録する。
func (c *Collector) RecordScanningTransition(action string) {
	c.scanningTransitions.WithLabelValues(action).Inc()
}

// RecordSessionSuperseded は無効化済みトークンによるリクエストを記録する。
func (c *Collector) RecordSessionSuperseded() {
	c.sessionsSuperseded.Inc()
}

// RecordSessionsSwept は期限切れで削除したセッション数を記録する。
func (c *Collector) RecordSessionsSwept(count int) {
	c.sessionsSwept.Add(float64(count))
}

// SetActiveSessions は現在のセッション数を設定する。
func (c *Collector) SetActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
