// Package metrics exposes Prometheus instrumentation for the bot: sync
// cycle outcomes, command dispatch counts, outbound sends and media
// uploads, served over an optional HTTP endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors the bot records into.
type Metrics struct {
	SyncRequests prometheus.Counter
	SyncFailures *prometheus.CounterVec
	Commands     *prometheus.CounterVec
	MessagesSent prometheus.Counter
	SendFailures prometheus.Counter
	MediaUploads *prometheus.CounterVec
	RoomsJoined  prometheus.Counter
}

// Failure reasons for the sync_failures_total counter.
const (
	ReasonTransport = "transport"
	ReasonParse     = "parse"
)

// Upload outcomes for the media_uploads_total counter.
const (
	UploadOK     = "ok"
	UploadFailed = "failed"
)

// NewMetrics creates and registers all collectors on the given registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SyncRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botvinnik_sync_requests_total",
			Help: "Total sync long-poll requests issued.",
		}),
		SyncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botvinnik_sync_failures_total",
			Help: "Total failed sync cycles by reason.",
		}, []string{"reason"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botvinnik_commands_total",
			Help: "Total commands dispatched by command name.",
		}, []string{"command"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botvinnik_messages_sent_total",
			Help: "Total messages sent to rooms.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botvinnik_send_failures_total",
			Help: "Total message sends that failed.",
		}),
		MediaUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botvinnik_media_uploads_total",
			Help: "Total media uploads by outcome.",
		}, []string{"status"}),
		RoomsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botvinnik_rooms_joined_total",
			Help: "Total rooms joined from invites.",
		}),
	}

	registry.MustRegister(
		m.SyncRequests,
		m.SyncFailures,
		m.Commands,
		m.MessagesSent,
		m.SendFailures,
		m.MediaUploads,
		m.RoomsJoined,
	)
	return m
}
