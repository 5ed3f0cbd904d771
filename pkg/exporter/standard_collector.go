package exporter

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	terminus_quota "github.com/terminus-io/quota"
	"github.com/terminus-io/storage-agent/pkg/metadata"
	"k8s.io/klog/v2"
)

var maxID = uint32(999999999)

// StandardCollector reads project quotas through quotactl(2) instead of
// spawning xfs_quota on every scrape.
type StandardCollector struct {
	mountPoint string
	store      *metadata.AsyncStore
}

func NewStandardCollector(mountPoint string, store *metadata.AsyncStore) *StandardCollector {
	return &StandardCollector{
		mountPoint: mountPoint,
		store:      store,
	}
}

func (c *StandardCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descBytesUsed
	ch <- descBytesLimit
	ch <- descInodesUsed
}

func (c *StandardCollector) Collect(ch chan<- prometheus.Metric) {
	quotaInfos, err := terminus_quota.ListQuotas(c.mountPoint, terminus_quota.ProjQuota, maxID)
	if err != nil {
		klog.ErrorS(err, "Failed to list project quotas")
		return
	}

	for _, r := range quotaInfos {
		info, ok := c.store.Get(metadata.ProjectID(r.ID))
		if !ok {
			continue
		}
		idStr := fmt.Sprintf("%d", r.ID)
		ch <- prometheus.MustNewConstMetric(descBytesUsed, prometheus.GaugeValue, float64(r.CurrentBlocks),
			info.VolumeID, c.mountPoint, idStr)
		ch <- prometheus.MustNewConstMetric(descBytesLimit, prometheus.GaugeValue, float64(r.BlockHardLimit),
			info.VolumeID, c.mountPoint, idStr)
		ch <- prometheus.MustNewConstMetric(descInodesUsed, prometheus.GaugeValue, float64(r.CurrentInodes),
			info.VolumeID, c.mountPoint, idStr)
	}
}
