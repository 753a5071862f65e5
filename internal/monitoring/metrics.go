// Package monitoring 提供 Prometheus 指标与健康检查。
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 消息指标
	MessagesCreated  prometheus.Counter
	MessagesSent     prometheus.Counter
	MessagesRead     prometheus.Counter
	DraftsSaved      prometheus.Counter
	SpamFlagged      prometheus.Counter

	// 外部投递指标
	ExternalDeliverySuccess prometheus.Counter
	ExternalDeliveryFailure prometheus.Counter

	// 定时投递指标
	ScheduledPromoted prometheus.Counter
	ScheduledNoop     prometheus.Counter

	// 附件指标
	AttachmentsStored  prometheus.Counter
	AttachmentsDropped prometheus.Counter
	AttachmentSize     prometheus.Histogram

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bizmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		MessagesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_messages_created_total",
			Help: "Total number of messages created",
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_messages_sent_total",
			Help: "Total number of messages dispatched",
		}),
		MessagesRead: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_messages_read_total",
			Help: "Total number of messages marked as read",
		}),
		DraftsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_drafts_saved_total",
			Help: "Total number of drafts saved",
		}),
		SpamFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_spam_flagged_total",
			Help: "Total number of messages flagged as spam",
		}),
		ExternalDeliverySuccess: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_external_delivery_success_total",
			Help: "Total number of successful external deliveries",
		}),
		ExternalDeliveryFailure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_external_delivery_failure_total",
			Help: "Total number of failed external deliveries",
		}),
		ScheduledPromoted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_scheduled_promoted_total",
			Help: "Total number of scheduled messages promoted to sent",
		}),
		ScheduledNoop: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_scheduled_noop_total",
			Help: "Total number of scheduled scans resolved as no-op",
		}),
		AttachmentsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_attachments_stored_total",
			Help: "Total number of attachments stored",
		}),
		AttachmentsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_attachments_dropped_total",
			Help: "Total number of attachments dropped",
		}),
		AttachmentSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bizmail_attachment_size_bytes",
			Help:    "Attachment size in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizmail_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		PanicsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bizmail_panics_total",
			Help: "Total number of recovered panics",
		}),
	}
}
