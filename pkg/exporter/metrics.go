package exporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/terminus-io/storage-agent/pkg/metadata"
)

var (
	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terminus_storage_rpc_requests_total",
			Help: "Total number of volume RPC requests by method and status code",
		},
		[]string{"method", "code"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "terminus_storage_rpc_request_duration_seconds",
			Help:    "Volume RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// VolumeLister is the read side of a volume backend.
type VolumeLister interface {
	Volumes() []metadata.VolumeRecord
}

// ObserveRPC records one finished request.
func ObserveRPC(method, code string, d time.Duration) {
	RPCRequestsTotal.WithLabelValues(method, code).Inc()
	RPCRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func newVolumesGauge(lister VolumeLister) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "terminus_storage_volumes_total",
			Help: "Total number of provisioned volumes",
		},
		func() float64 { return float64(len(lister.Volumes())) },
	)
}

// NewRegistry registers the usage collector, the RPC metrics and the
// volume count on a fresh registry.
func NewRegistry(collector prometheus.Collector, lister VolumeLister) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if collector != nil {
		reg.MustRegister(collector)
	}
	reg.MustRegister(RPCRequestsTotal, RPCRequestDuration)
	if lister != nil {
		reg.MustRegister(newVolumesGauge(lister))
	}
	return reg
}
