package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"asteriskgui/internal/ami"
)

const namespace = "asteriskgui"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	amiConnected    prometheus.Gauge
	amiReconnects   prometheus.Counter
	amiEvents       *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	reloads         *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		amiConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ami_connected",
			Help:      "1 while the manager connection is up.",
		}),
		amiReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ami_reconnects_total",
			Help:      "Reconnect attempts scheduled after a dropped manager connection.",
		}),
		amiEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ami_events_total",
			Help:      "Manager events relayed, by event name.",
		}, []string{"event"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ami_commands_total",
			Help:      "CLI commands sent over the manager, by result.",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ami_command_duration_seconds",
			Help:      "Latency of CLI commands sent over the manager.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asterisk_reloads_total",
			Help:      "Module reloads, by module and result.",
		}, []string{"module", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.amiConnected,
		m.amiReconnects,
		m.amiEvents,
		m.commands,
		m.commandDuration,
		m.reloads,
		m.requests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchClients exposes the relay connection count.
func (m *Metrics) WatchClients(connected func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected relay clients.",
	}, func() float64 { return float64(connected()) }))
}

// WatchState exposes the manager connection state as its numeric value.
func (m *Metrics) WatchState(state func() ami.State) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ami_state",
		Help:      "Manager connection state: 0 disconnected, 1 connecting, 2 connected, 3 exhausted.",
	}, func() float64 { return float64(state()) }))
}

func (m *Metrics) ObserveNotification(n ami.Notification) {
	switch n.Kind {
	case ami.NotifyConnected:
		m.amiConnected.Set(1)
	case ami.NotifyDisconnected:
		m.amiConnected.Set(0)
	case ami.NotifyReconnectScheduled:
		m.amiReconnects.Inc()
	case ami.NotifyReloaded:
		m.reloads.WithLabelValues(n.Module, "success").Inc()
	case ami.NotifyReloadFailed:
		m.reloads.WithLabelValues(n.Module, "error").Inc()
	}
}

func (m *Metrics) ObserveEvent(ev ami.Event) {
	m.amiEvents.WithLabelValues(string(ev.Name)).Inc()
}

// Commander counts and times every command sent through next.
func (m *Metrics) Commander(next ami.Commander) ami.Commander {
	return &commander{next: next, m: m}
}

type commander struct {
	next ami.Commander
	m    *Metrics
}

func (c *commander) SendCommand(ctx context.Context, command string) (string, error) {
	start := time.Now()
	out, err := c.next.SendCommand(ctx, command)
	c.m.commandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	c.m.commands.WithLabelValues(command, commandResult(err)).Inc()
	return out, err
}

func (c *commander) State() ami.State { return c.next.State() }

func commandResult(err error) string {
	var cmdErr *ami.CommandError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ami.ErrNotConnected):
		return "not_connected"
	case errors.As(err, &cmdErr):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// Middleware records request counts and latency labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
