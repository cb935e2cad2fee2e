// Package metrics exposes the mux engine's Prometheus instrumentation:
// counters for clusters rendered, bytes written, packets muxed, warnings
// issued and split rollovers. Wired optionally by
// the CLI behind a --metrics-addr flag; the engine itself only touches
// the narrow Recorder interface so tests can substitute a no-op.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the surface the mux engine calls into; Metrics implements
// it against real Prometheus collectors, and tests can provide a no-op.
type Recorder interface {
	ClusterRendered(bytes int)
	PacketMuxed(sourceID string)
	WarningIssued(kind string)
	SplitRolled()
}

// Metrics owns a dedicated prometheus.Registry (rather than the global
// default registry) so multiple mux runs in the same process — as in
// tests — don't collide on metric registration.
type Metrics struct {
	registry *prometheus.Registry

	clustersRendered prometheus.Counter
	bytesWritten     prometheus.Counter
	packetsMuxed     *prometheus.CounterVec
	warningsIssued   *prometheus.CounterVec
	splitRollovers   prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		clustersRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "mkvmux_clusters_rendered_total",
			Help: "Total number of Matroska clusters rendered to the output writer.",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "mkvmux_bytes_written_total",
			Help: "Total bytes written to the output sink across all clusters.",
		}),
		packetsMuxed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mkvmux_packets_muxed_total",
			Help: "Total packets accepted by the cluster assembler, by source.",
		}, []string{"source_id"}),
		warningsIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mkvmux_warnings_total",
			Help: "Total advisory (non-fatal) conditions raised during a run, by kind.",
		}, []string{"kind"}),
		splitRollovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "mkvmux_split_rollovers_total",
			Help: "Total output-file rollovers performed by the splitter.",
		}),
	}
}

// Registry exposes the underlying prometheus.Registry so the CLI can wire
// promhttp.HandlerFor at --metrics-addr.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ClusterRendered(bytes int) {
	m.clustersRendered.Inc()
	m.bytesWritten.Add(float64(bytes))
}

func (m *Metrics) PacketMuxed(sourceID string) { m.packetsMuxed.WithLabelValues(sourceID).Inc() }

func (m *Metrics) WarningIssued(kind string) { m.warningsIssued.WithLabelValues(kind).Inc() }

func (m *Metrics) SplitRolled() { m.splitRollovers.Inc() }

// Noop implements Recorder as a discard target, for tests that don't care
// about instrumentation.
type Noop struct{}

func (Noop) ClusterRendered(int)  {}
func (Noop) PacketMuxed(string)   {}
func (Noop) WarningIssued(string) {}
func (Noop) SplitRolled()         {}

var _ Recorder = (*Metrics)(nil)
var _ Recorder = Noop{}
