// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はサービス層・ワーカー・HTTPミドルウェアから使うメトリクス記録のインターフェース。
type Recorder interface {
	RecordApplicationSubmitted()
	RecordTransition(status string)
	RecordCapacityRejection(stage string)
	RecordApplicationCancelled()
	RecordAccountProvisioned()
	RecordHandleCollision()
	RecordReviewCreated()
	RecordOccupancyCorrections(count int)
	RecordMaintenanceRun(job string, d time.Duration)
	RecordHTTPStatus(statusCode int)
}

// 定員超過の拒否が起きた段階
const (
	StageSubmit  = "submit"
	StageApprove = "approve"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submitted          prometheus.Counter
	transitions        *prometheus.CounterVec
	capacityRejections *prometheus.CounterVec
	cancelled          prometheus.Counter
	provisioned        prometheus.Counter
	handleCollisions   prometheus.Counter
	reviews            prometheus.Counter
	corrections        prometheus.Counter
	maintenance        *prometheus.HistogramVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector はCollectorを生成し、regに登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volunteer_applications_submitted_total",
			Help: "受け付けた参加申請の合計数",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volunteer_application_transitions_total",
			Help: "遷移先ステータス別の申請状態遷移数",
		}, []string{"status"}),
		capacityRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volunteer_capacity_rejections_total",
			Help: "定員超過で拒否した操作の数",
		}, []string{"stage"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volunteer_applications_cancelled_total",
			Help: "取り消された申請の合計数",
		}),
		provisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volunteer_accounts_provisioned_total",
			Help: "自動作成したアカウントの合計数",
		}),
		handleCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volunteer_handle_collisions_total",
			Help: "ハンドル候補が使用済みだった回数",
		}),
		reviews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volunteer_reviews_created_total",
			Help: "作成された後記の合計数",
		}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volunteer_occupancy_corrections_total",
			Help: "参加人数を補正した投稿の合計数",
		}),
		maintenance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "volunteer_maintenance_duration_seconds",
			Help:    "メンテナンスジョブの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volunteer_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.submitted,
		c.transitions,
		c.capacityRejections,
		c.cancelled,
		c.provisioned,
		c.handleCollisions,
		c.reviews,
		c.corrections,
		c.maintenance,
		c.httpStatus,
	)
	return c
}

func (c *Collector) RecordApplicationSubmitted() { c.submitted.Inc() }

func (c *Collector) RecordTransition(status string) {
	c.transitions.WithLabelValues(status).Inc()
}

func (c *Collector) RecordCapacityRejection(stage string) {
	c.capacityRejections.WithLabelValues(stage).Inc()
}

func (c *Collector) RecordApplicationCancelled() { c.cancelled.Inc() }

func (c *Collector) RecordAccountProvisioned() { c.provisioned.Inc() }

func (c *Collector) RecordHandleCollision() { c.handleCollisions.Inc() }

func (c *Collector) RecordReviewCreated() { c.reviews.Inc() }

// RecordOccupancyCorrections は補正件数を加算する。0以下は無視する。
func (c *Collector) RecordOccupancyCorrections(count int) {
	if count > 0 {
		c.corrections.Add(float64(count))
	}
}

func (c *Collector) RecordMaintenanceRun(job string, d time.Duration) {
	c.maintenance.WithLabelValues(job).Observe(d.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないRecorder。テストとMETRICS_ENABLED=false時に使う。
type Nop struct{}

func (Nop) RecordApplicationSubmitted()                {}
func (Nop) RecordTransition(string)                    {}
func (Nop) RecordCapacityRejection(string)             {}
func (Nop) RecordApplicationCancelled()                {}
func (Nop) RecordAccountProvisioned()                  {}
func (Nop) RecordHandleCollision()                     {}
func (Nop) RecordReviewCreated()                       {}
func (Nop) RecordOccupancyCorrections(int)             {}
func (Nop) RecordMaintenanceRun(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                       {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
