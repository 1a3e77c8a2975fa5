package observability

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/sim"
)

// SimCollector bundles Prometheus metrics for a simulation run. It is a
// sim.StatsWriter and sim.EventWriter so it can sit behind a MultiWriter.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Steps      prometheus.Gauge
	SimTime    prometheus.Gauge
	Sent       prometheus.Counter
	Delivered  prometheus.Counter
	Lost       *prometheus.CounterVec
	Deferred   prometheus.Counter
	PDR        prometheus.Gauge
	Delay      prometheus.Histogram
	NodesPerSF *prometheus.GaugeVec

	sent      float64
	delivered float64
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lorasim_step",
		Help: "Index of the last executed simulation step.",
	}), "lorasim_step")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lorasim_time_seconds",
		Help: "Simulated time of the last executed step.",
	}), "lorasim_time_seconds")
	if err != nil {
		return nil, err
	}
	sent, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lorasim_packets_sent_total",
		Help: "Transmissions started by end devices.",
	}), "lorasim_packets_sent_total")
	if err != nil {
		return nil, err
	}
	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lorasim_packets_delivered_total",
		Help: "Packets recorded by the network server.",
	}), "lorasim_packets_delivered_total")
	if err != nil {
		return nil, err
	}
	lost, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lorasim_packets_lost_total",
		Help: "Packets no gateway delivered, labeled by reason (collision, no_coverage).",
	}, []string{"reason"}), "lorasim_packets_lost_total")
	if err != nil {
		return nil, err
	}
	deferred, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lorasim_transmissions_deferred_total",
		Help: "Transmission attempts denied by the duty-cycle gate.",
	}), "lorasim_transmissions_deferred_total")
	if err != nil {
		return nil, err
	}
	pdr, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lorasim_pdr_ratio",
		Help: "Delivered over sent since the start of the run.",
	}), "lorasim_pdr_ratio")
	if err != nil {
		return nil, err
	}
	delay, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lorasim_delivery_delay_seconds",
		Help:    "Time from transmission start to delivery.",
		Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "lorasim_delivery_delay_seconds")
	if err != nil {
		return nil, err
	}
	perSF, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lorasim_nodes",
		Help: "Current number of nodes per spreading factor.",
	}, []string{"sf"}), "lorasim_nodes")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:   gatherer,
		Steps:      steps,
		SimTime:    simTime,
		Sent:       sent,
		Delivered:  delivered,
		Lost:       lost,
		Deferred:   deferred,
		PDR:        pdr,
		Delay:      delay,
		NodesPerSF: perSF,
	}, nil
}

// Write implements sim.StatsWriter.
func (c *SimCollector) Write(st sim.StepStats) error {
	if c == nil {
		return nil
	}
	c.Steps.Set(float64(st.Step))
	c.SimTime.Set(st.Time)
	c.Sent.Add(float64(st.Sent))
	c.Delivered.Add(float64(st.Delivered))
	c.Lost.WithLabelValues("collision").Add(float64(st.Collided))
	c.Lost.WithLabelValues("no_coverage").Add(float64(st.NoCoverage))
	c.Deferred.Add(float64(st.Deferred))
	c.sent += float64(st.Sent)
	c.delivered += float64(st.Delivered)
	if c.sent > 0 {
		c.PDR.Set(c.delivered / c.sent)
	}
	return nil
}

// WriteFlush implements sim.FlushWriter and counts outcomes resolved at
// finalization.
func (c *SimCollector) WriteFlush(st sim.StepStats) error {
	if c == nil {
		return nil
	}
	c.Delivered.Add(float64(st.Delivered))
	c.Lost.WithLabelValues("collision").Add(float64(st.Collided))
	c.Lost.WithLabelValues("no_coverage").Add(float64(st.NoCoverage))
	c.delivered += float64(st.Delivered)
	if c.sent > 0 {
		c.PDR.Set(c.delivered / c.sent)
	}
	return nil
}

// WriteEvents implements sim.EventWriter and feeds the delay histogram.
func (c *SimCollector) WriteEvents(events []sim.Event) error {
	if c == nil {
		return nil
	}
	for _, e := range events {
		if e.Result == sim.ResultSuccess {
			c.Delay.Observe(e.End - e.Start)
		}
	}
	return nil
}

// SetSFDistribution replaces the per-SF node gauges.
func (c *SimCollector) SetSFDistribution(dist map[int]int) {
	if c == nil {
		return
	}
	for sf, n := range dist {
		c.NodesPerSF.WithLabelValues(strconv.Itoa(sf)).Set(float64(n))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
