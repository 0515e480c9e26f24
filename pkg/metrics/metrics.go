// Package metrics exposes Prometheus collectors for both ends of the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/morezero/widget-bridge/pkg/correlator"
)

// Bridge holds the widget-side collectors. It implements bridge.Observer.
type Bridge struct {
	RequestsIssued   prometheus.Counter
	RequestsPending  prometheus.Gauge
	RequestsSettled  *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	EventsDispatched *prometheus.CounterVec
	EventDeliveries  *prometheus.CounterVec
	SubscriberPanics *prometheus.CounterVec
	InboundDropped   *prometheus.CounterVec
}

// NewBridge registers the widget-side collectors with reg. A nil reg uses
// the default registerer.
func NewBridge(reg prometheus.Registerer) *Bridge {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Bridge{
		RequestsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_bridge_requests_total",
			Help: "Total number of requests sent to the host",
		}),
		RequestsPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "widget_bridge_requests_pending",
			Help: "Requests waiting for a reply",
		}),
		RequestsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_bridge_requests_settled_total",
			Help: "Settled requests by outcome",
		}, []string{"outcome"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "widget_bridge_request_duration_seconds",
			Help:    "Time from request to settlement",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		EventsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_bridge_events_dispatched_total",
			Help: "Inbound events dispatched to the registry",
		}, []string{"event"}),
		EventDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_bridge_event_deliveries_total",
			Help: "Subscriber callbacks completed",
		}, []string{"event"}),
		SubscriberPanics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_bridge_subscriber_failures_total",
			Help: "Subscriber callbacks that panicked",
		}, []string{"event"}),
		InboundDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_bridge_inbound_dropped_total",
			Help: "Inbound messages that could not be routed",
		}, []string{"reason"}),
	}
}

func (m *Bridge) RequestIssued() {
	m.RequestsIssued.Inc()
	m.RequestsPending.Inc()
}

func (m *Bridge) RequestSettled(outcome correlator.Outcome, elapsed time.Duration) {
	m.RequestsPending.Dec()
	m.RequestsSettled.WithLabelValues(string(outcome)).Inc()
	m.RequestDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (m *Bridge) EventDispatched(event string, delivered int) {
	m.EventsDispatched.WithLabelValues(event).Inc()
	m.EventDeliveries.WithLabelValues(event).Add(float64(delivered))
}

func (m *Bridge) SubscriberFailed(event string) {
	m.SubscriberPanics.WithLabelValues(event).Inc()
}

func (m *Bridge) MessageDropped(reason string) {
	m.InboundDropped.WithLabelValues(reason).Inc()
}

// Host holds the dev host collectors.
type Host struct {
	Dispatched    *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	EventsPushed  *prometheus.CounterVec
	WSConnections prometheus.Gauge
}

// NewHost registers the host-side collectors with reg. A nil reg uses the
// default registerer.
func NewHost(reg prometheus.Registerer) *Host {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Host{
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_host_messages_total",
			Help: "Widget messages handled by the host",
		}, []string{"type", "status"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "widget_host_dispatch_duration_seconds",
			Help:    "Time spent handling one widget message",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"type"}),
		EventsPushed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_host_events_pushed_total",
			Help: "Events pushed to widgets",
		}, []string{"event"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "widget_host_ws_connections",
			Help: "Open widget websocket connections",
		}),
	}
}

// ObserveDispatch records one handled message.
func (m *Host) ObserveDispatch(typ, status string, elapsed time.Duration) {
	m.Dispatched.WithLabelValues(typ, status).Inc()
	m.Duration.WithLabelValues(typ).Observe(elapsed.Seconds())
}
