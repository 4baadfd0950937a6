package actor

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "gotp"
	promSubsystem = "actors"
	wildcard      = "*"
)

// PrometheusMonitor exports actor activity as prometheus metrics labelled by normalized actor
// name.
type PrometheusMonitor struct {
	started  *prom.CounterVec
	restarts *prom.CounterVec
	deaths   *prom.CounterVec
	received *prom.CounterVec
	skipped  *prom.CounterVec
	running  prom.Gauge
}

// NewPrometheusMonitor creates a monitor and registers its collectors with the registerer.
func NewPrometheusMonitor(registerer prom.Registerer) (*PrometheusMonitor, error) {
	counter := func(name, help string, labels ...string) *prom.CounterVec {
		return prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      name,
			Help:      help,
		}, append([]string{"actor"}, labels...))
	}
	m := &PrometheusMonitor{
		started:  counter("started_total", "actors started"),
		restarts: counter("restarts_total", "actors restarted by a supervisor"),
		deaths:   counter("deaths_total", "actor deaths by kind of cause", "cause"),
		received: counter("received_total", "messages received by actors"),
		skipped:  counter("skipped_total", "messages skipped by selective receives"),
		running: prom.NewGauge(prom.GaugeOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "running",
			Help:      "number of running actors",
		}),
	}

	var result *multierror.Error
	for _, c := range []prom.Collector{
		m.started, m.restarts, m.deaths, m.received, m.skipped, m.running,
	} {
		if err := registerer.Register(c); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "registering actor metrics"))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return m, nil
}

// ActorStarted implements Monitor.
func (m *PrometheusMonitor) ActorStarted(h Handle) {
	m.started.WithLabelValues(normalizeName(h)).Inc()
	m.running.Inc()
}

// ActorRestarted implements Monitor.
func (m *PrometheusMonitor) ActorRestarted(h Handle) {
	m.restarts.WithLabelValues(normalizeName(h)).Inc()
}

// ActorDied implements Monitor.
func (m *PrometheusMonitor) ActorDied(h Handle, cause error) {
	m.deaths.WithLabelValues(normalizeName(h), causeKind(cause)).Inc()
	m.running.Dec()
}

// MessageReceived implements Monitor.
func (m *PrometheusMonitor) MessageReceived(h Handle) {
	m.received.WithLabelValues(normalizeName(h)).Inc()
}

// MessageSkipped implements Monitor.
func (m *PrometheusMonitor) MessageSkipped(h Handle) {
	m.skipped.WithLabelValues(normalizeName(h)).Inc()
}

func causeKind(cause error) string {
	var lifecycle *LifecycleError
	switch {
	case cause == nil:
		return "normal"
	case errors.As(cause, &lifecycle):
		return "linked"
	case errors.Is(cause, ErrInterrupted):
		return "interrupted"
	default:
		return "error"
	}
}

// normalizeName exists to normalize actor names like worker-1 and conn-<uuid> into worker-* and
// conn-* so that there isn't an explosion of prometheus labels. Unnamed actors are labelled by
// their type.
func normalizeName(h Handle) string {
	name := h.Name()
	if name == "" {
		if ref, ok := h.(*Ref); ok {
			return ref.typeName
		}
		return wildcard
	}
	parts := strings.Split(name, "-")
	for i, part := range parts {
		if _, err := strconv.Atoi(part); err == nil {
			parts[i] = wildcard
		}
	}
	normalized := strings.Join(parts, "-")
	// UUIDs contain dashes, so look for them in the original name.
	for i := 0; i+36 <= len(name); i++ {
		if _, err := uuid.Parse(name[i : i+36]); err == nil {
			return name[:i] + wildcard
		}
	}
	return normalized
}
