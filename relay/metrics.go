package relay

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wlrelay/wlrelay/damage"
	"github.com/wlrelay/wlrelay/proto"
)

// Metrics exposes the diagnostic counters spec.md §3 names
// (acc_damage_stat, acc_count) plus bounding-box area and object table
// size, as Prometheus gauges/counters registered on their own Registry —
// the pattern _examples/runZeroInc-sockstats uses to expose kernel/socket
// introspection data via github.com/prometheus/client_golang.
type Metrics struct {
	Registry *prometheus.Registry

	damageStat  *prometheus.GaugeVec
	damageCount *prometheus.GaugeVec
	boundArea   *prometheus.GaugeVec
	objects     *prometheus.GaugeVec
	framesSent  *prometheus.CounterVec
	framesRecv  *prometheus.CounterVec
}

// NewMetrics constructs a Metrics with a fresh Registry. Every series
// carries a "direction" label whose value each Observe call passes in
// (Session uses "local_to_peer" and "peer_to_local"), so a single process
// running both directions reports them distinctly.
func NewMetrics() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.damageStat = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wlrelay",
		Name:      "damage_acc_stat_bytes",
		Help:      "Running sum of width*rep over every damage submission, pre-coalesce (spec acc_damage_stat).",
	}, []string{"direction"})
	m.damageCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wlrelay",
		Name:      "damage_acc_count",
		Help:      "Number of damage submissions since the last reset (spec acc_count).",
	}, []string{"direction"})
	m.boundArea = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wlrelay",
		Name:      "damage_bounding_area_bytes",
		Help:      "Covered area (sum of rep*width) of the current damage set's retained intervals.",
	}, []string{"direction"})
	m.objects = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wlrelay",
		Name:      "object_table_size",
		Help:      "Number of live entries in the protocol object table.",
	}, []string{"direction"})
	m.framesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wlrelay",
		Name:      "tunnel_frames_sent_total",
		Help:      "Frames written to the tunnel, by kind.",
	}, []string{"direction", "kind"})
	m.framesRecv = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wlrelay",
		Name:      "tunnel_frames_received_total",
		Help:      "Frames read from the tunnel, by kind.",
	}, []string{"direction", "kind"})

	m.Registry.MustRegister(m.damageStat, m.damageCount, m.boundArea, m.objects, m.framesSent, m.framesRecv)
	return m
}

// ObserveDamage updates the gauges for one direction from its live Set and
// Table. It is cheap enough to call after every dispatch that touches
// damage state; none of the gauge updates gate correctness (spec §3:
// "the counters are diagnostic only").
func (m *Metrics) ObserveDamage(direction string, set *damage.Set, table *proto.Table) {
	m.damageStat.WithLabelValues(direction).Set(float64(set.AccDamageStat))
	m.damageCount.WithLabelValues(direction).Set(float64(set.AccCount))
	_, _, area := set.Bounding()
	m.boundArea.WithLabelValues(direction).Set(float64(area))
	m.objects.WithLabelValues(direction).Set(float64(table.Len()))
}

// ObserveFrameSent/ObserveFrameReceived count tunnel traffic by kind.
func (m *Metrics) ObserveFrameSent(direction, kind string)     { m.framesSent.WithLabelValues(direction, kind).Inc() }
func (m *Metrics) ObserveFrameReceived(direction, kind string) { m.framesRecv.WithLabelValues(direction, kind).Inc() }
