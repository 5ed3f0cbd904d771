package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/quota"
	"k8s.io/klog/v2"
)

var (
	volumeLabels = []string{"volume_id", "mount_point", "project_id"}

	// 空间指标
	descBytesUsed = prometheus.NewDesc(
		"terminus_storage_used_bytes",
		"Storage usage in bytes per volume",
		volumeLabels, nil,
	)
	descBytesLimit = prometheus.NewDesc(
		"terminus_storage_limit_bytes",
		"Storage hard limit in bytes per volume",
		volumeLabels, nil,
	)
	// Inode 指标
	descInodesUsed = prometheus.NewDesc(
		"terminus_storage_inodes_used",
		"Inode usage count per volume",
		volumeLabels, nil,
	)
	descInodesLimit = prometheus.NewDesc(
		"terminus_storage_inodes_limit",
		"Inode hard limit count per volume",
		volumeLabels, nil,
	)
)

// scrapeTimeout bounds the quota tool calls of a single scrape.
const scrapeTimeout = 10 * time.Second

// XFSCollector reports per-volume usage from `xfs_quota report`.
type XFSCollector struct {
	mountPoint string
	qm         quota.QuotaManager
	store      *metadata.AsyncStore
}

func NewXFSCollector(mountPoint string, qm quota.QuotaManager, store *metadata.AsyncStore) *XFSCollector {
	return &XFSCollector{
		mountPoint: mountPoint,
		qm:         qm,
		store:      store,
	}
}

func (c *XFSCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descBytesUsed
	ch <- descBytesLimit
	ch <- descInodesUsed
	ch <- descInodesLimit
}

func (c *XFSCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	blockReports, err := c.qm.FetchAllReports(ctx, quota.BlockReport)
	if err != nil {
		klog.ErrorS(err, "Failed to collect block metrics")
	} else {
		for id, r := range blockReports {
			info, ok := c.store.Get(id)
			if !ok {
				continue
			}
			idStr := fmt.Sprintf("%d", id)
			ch <- prometheus.MustNewConstMetric(descBytesUsed, prometheus.GaugeValue, float64(r.Used),
				info.VolumeID, c.mountPoint, idStr)
			ch <- prometheus.MustNewConstMetric(descBytesLimit, prometheus.GaugeValue, float64(r.Limit),
				info.VolumeID, c.mountPoint, idStr)
		}
	}

	inodeReports, err := c.qm.FetchAllReports(ctx, quota.InodeReport)
	if err != nil {
		klog.ErrorS(err, "Failed to collect inode metrics")
	} else {
		for id, r := range inodeReports {
			info, ok := c.store.Get(id)
			if !ok {
				klog.V(5).InfoS("Project ID has no volume", "id", id)
				continue
			}
			idStr := fmt.Sprintf("%d", id)
			ch <- prometheus.MustNewConstMetric(descInodesUsed, prometheus.GaugeValue, float64(r.Used),
				info.VolumeID, c.mountPoint, idStr)
			ch <- prometheus.MustNewConstMetric(descInodesLimit, prometheus.GaugeValue, float64(r.Limit),
				info.VolumeID, c.mountPoint, idStr)
		}
	}
}
