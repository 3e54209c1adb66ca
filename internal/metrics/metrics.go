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
// オーケストレーターやハンドラー層から利用する。
type MetricsCollector interface {
	RecordOTPIssued(purpose string)
	RecordVerifySuccess(purpose string)
	RecordVerifyFailure(purpose string)
	RecordDeliveryFailure()
	RecordSessionIssued()
	RecordDirectLogin()
	RecordHTTPStatus(statusCode int)
	RecordVerifyLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	otpIssued     *prometheus.CounterVec
	verifySuccess *prometheus.CounterVec
	verifyFail    *prometheus.CounterVec
	deliveryFail  prometheus.Counter
	sessionIssued prometheus.Counter
	directLogin   prometheus.Counter
	httpStatus    *prometheus.CounterVec
	verifyLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otpgate_otp_issued_total",
			Help: "発行されたOTPチャレンジの合計数",
		}, []string{"purpose"}),
		verifySuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otpgate_verify_success_total",
			Help: "OTP検証成功の合計数",
		}, []string{"purpose"}),
		verifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otpgate_verify_fail_total",
			Help: "OTP検証失敗の合計数",
		}, []string{"purpose"}),
		deliveryFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otpgate_delivery_fail_total",
			Help: "OTPコード配送失敗の合計数",
		}),
		sessionIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otpgate_sessions_issued_total",
			Help: "発行されたセッションの合計数",
		}),
		directLogin: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otpgate_direct_login_total",
			Help: "OTPを介さない直接ログインの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otpgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "otpgate_verify_latency_seconds",
			Help:    "OTP検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.otpIssued,
		c.verifySuccess,
		c.verifyFail,
		c.deliveryFail,
		c.sessionIssued,
		c.directLogin,
		c.httpStatus,
		c.verifyLatency,
	)

	return c
}

// RecordOTPIssued はOTPチャレンジの発行を記録する。
func (c *Collector) RecordOTPIssued(purpose string) {
	c.otpIssued.WithLabelValues(purpose).Inc()
}

// RecordVerifySuccess はOTP検証成功を記録する。
func (c *Collector) RecordVerifySuccess(purpose string) {
	c.verifySuccess.WithLabelValues(purpose).Inc()
}

// RecordVerifyFailure はOTP検証失敗を記録する。
func (c *Collector) RecordVerifyFailure(purpose string) {
	c.verifyFail.WithLabelValues(purpose).Inc()
}

// RecordDeliveryFailure はOTPコードの配送失敗を記録する。
func (c *Collector) RecordDeliveryFailure() {
	c.deliveryFail.Inc()
}

// RecordSessionIssued はセッションの発行を記録する。
func (c *Collector) RecordSessionIssued() {
	c.sessionIssued.Inc()
}

// RecordDirectLogin は直接ログインを記録する。
func (c *Collector) RecordDirectLogin() {
	c.directLogin.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordVerifyLatency はOTP検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
