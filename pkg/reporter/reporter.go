package reporter

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/terminus-io/storage-agent/pkg/utils"
	"go.etcd.io/etcd/client/v2"
	"k8s.io/klog/v2"
)

const (
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusStopped  = "stopped"

	shutdownTimeout = 5 * time.Second
)

// Reporter publishes this node's address, lifecycle status and disk usage
// under /<namespace>/nodes/storage/<node-id> in etcd.
type Reporter struct {
	kapi      client.KeysAPI
	prefix    string
	mountRoot string
	Interval  time.Duration

	diskUsage func(string) (utils.DiskStatus, error)
}

func NewReporter(kapi client.KeysAPI, namespace, nodeID, mountRoot string, interval time.Duration) *Reporter {
	return &Reporter{
		kapi:      kapi,
		prefix:    path.Join("/", namespace, "nodes", "storage", nodeID),
		mountRoot: mountRoot,
		Interval:  interval,
		diskUsage: utils.GetDiskUsage,
	}
}

// Key returns the absolute etcd key for name under this node.
func (r *Reporter) Key(name string) string {
	return path.Join(r.prefix, name)
}

func (r *Reporter) put(ctx context.Context, name, value string) error {
	if _, err := r.kapi.Set(ctx, r.Key(name), value, nil); err != nil {
		return fmt.Errorf("failed to set %s: %w", r.Key(name), err)
	}
	return nil
}

func (r *Reporter) UpdateStatus(ctx context.Context, status string) error {
	if err := r.put(ctx, "status", status); err != nil {
		return err
	}
	klog.V(2).InfoS("Updated node status", "key", r.Key("status"), "status", status)
	return nil
}

// Register publishes the RPC host and agent mode, then marks the node as
// running.
func (r *Reporter) Register(ctx context.Context, rpcHost, mode string) error {
	if err := r.put(ctx, "ip", rpcHost); err != nil {
		return err
	}
	if err := r.put(ctx, "mode", mode); err != nil {
		return err
	}
	return r.UpdateStatus(ctx, StatusRunning)
}

func (r *Reporter) ReportDiskUsage(ctx context.Context) error {
	disk, err := r.diskUsage(r.mountRoot)
	if err != nil {
		return fmt.Errorf("failed to get disk usage of %s: %w", r.mountRoot, err)
	}
	if err := r.put(ctx, "disk/total", strconv.FormatUint(disk.Total, 10)); err != nil {
		return err
	}
	if err := r.put(ctx, "disk/used", strconv.FormatUint(disk.Used, 10)); err != nil {
		return err
	}
	klog.V(4).InfoS("Successfully reported node stats", "total", utils.HumanGi(disk.Total), "used", utils.HumanGi(disk.Used))
	return nil
}

// Run reports disk usage every Interval and marks the node stopped once ctx
// is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	klog.InfoS("Starting reporter loop", "interval", r.Interval, "prefix", r.prefix)
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	reportFunc := func() {
		if err := r.ReportDiskUsage(ctx); err != nil {
			klog.Warningf("Failed to report disk usage: %v", err)
		}
	}

	// 启动时立即上报一次
	reportFunc()

	for {
		select {
		case <-ctx.Done():
			klog.Info("Reporter context cancelled, stopping loop.")
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			if err := r.UpdateStatus(stopCtx, StatusStopped); err != nil {
				klog.Warningf("Failed to mark node stopped: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			reportFunc()
		}
	}
}
