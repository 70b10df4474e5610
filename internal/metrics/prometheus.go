package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromCollector exposes scheduler activity as Prometheus metrics.
type PromCollector struct {
	gatherer prometheus.Gatherer

	Transmissions prometheus.Counter
	IdleTicks     prometheus.Counter
	LogicalTime   prometheus.Gauge
	AliveNodes    prometheus.Gauge
	AttachedNodes prometheus.Gauge
	Recovery      prometheus.Histogram
}

// NewPromCollector registers the metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewPromCollector(reg prometheus.Registerer) (*PromCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tx, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mesh_transmissions_total",
		Help: "Broadcasts executed by the scheduler.",
	}), "mesh_transmissions_total")
	if err != nil {
		return nil, err
	}
	idle, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mesh_idle_ticks_total",
		Help: "Scheduler steps that advanced time without a transmission.",
	}), "mesh_idle_ticks_total")
	if err != nil {
		return nil, err
	}
	clock, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mesh_logical_time_seconds",
		Help: "Estimated elapsed time of the current measurement.",
	}), "mesh_logical_time_seconds")
	if err != nil {
		return nil, err
	}
	alive, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mesh_alive_nodes",
		Help: "Nodes currently enabled, root included.",
	}), "mesh_alive_nodes")
	if err != nil {
		return nil, err
	}
	attached, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mesh_attached_nodes",
		Help: "Alive non-root nodes holding a route to the root.",
	}), "mesh_attached_nodes")
	if err != nil {
		return nil, err
	}
	recovery, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mesh_recovery_transmissions",
		Help:    "Transmissions needed to repair the tree after a node failure.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500},
	}), "mesh_recovery_transmissions")
	if err != nil {
		return nil, err
	}

	return &PromCollector{
		gatherer:      gatherer,
		Transmissions: tx,
		IdleTicks:     idle,
		LogicalTime:   clock,
		AliveNodes:    alive,
		AttachedNodes: attached,
		Recovery:      recovery,
	}, nil
}

// ObserveStep records one scheduler step. A nil collector is a no-op.
func (c *PromCollector) ObserveStep(transmitted bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	if transmitted {
		c.Transmissions.Inc()
	} else {
		c.IdleTicks.Inc()
	}
	c.LogicalTime.Set(elapsed.Seconds())
}

func (c *PromCollector) ObserveNodes(alive, attached int) {
	if c == nil {
		return
	}
	c.AliveNodes.Set(float64(alive))
	c.AttachedNodes.Set(float64(attached))
}

func (c *PromCollector) ObserveRecovery(count int) {
	if c == nil {
		return
	}
	c.Recovery.Observe(float64(count))
}

// Handler serves the gatherer the collector was registered with.
func (c *PromCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return h, nil
}
