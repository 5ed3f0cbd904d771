package volume

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/quota"
	"github.com/terminus-io/storage-agent/pkg/utils"
	"k8s.io/klog/v2"
)

const volumeDirMode = 0o755

// QuotaFsBackend provisions one directory per volume under the mount root of
// an XFS filesystem and caps it with a project quota.
//
// Create and Remove hold mu for their whole duration: both read-modify-write
// the allocator and the registry tables. Resolve is a pure function of the
// mount root and takes no lock.
type QuotaFsBackend struct {
	mu sync.Mutex

	mountRoot string
	uid, gid  int

	registry  *metadata.Registry
	allocator *metadata.Allocator
	qm        quota.QuotaManager
	store     *metadata.AsyncStore

	removeAll func(path string) error
}

type Option func(*QuotaFsBackend)

func WithOwner(uid, gid int) Option {
	return func(b *QuotaFsBackend) { b.uid, b.gid = uid, gid }
}

func WithStore(s *metadata.AsyncStore) Option {
	return func(b *QuotaFsBackend) { b.store = s }
}

func NewQuotaFsBackend(mountRoot string, registry *metadata.Registry, qm quota.QuotaManager, opts ...Option) *QuotaFsBackend {
	if abs, err := filepath.Abs(mountRoot); err == nil {
		mountRoot = abs
	}
	b := &QuotaFsBackend{
		mountRoot: mountRoot,
		uid:       os.Getuid(),
		gid:       os.Getgid(),
		registry:  registry,
		allocator: metadata.NewAllocator(),
		qm:        qm,
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// QuotaManager exposes the quota tooling for usage reporting.
func (b *QuotaFsBackend) QuotaManager() quota.QuotaManager { return b.qm }

func (b *QuotaFsBackend) MountRoot() string { return b.mountRoot }

func (b *QuotaFsBackend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fi, err := os.Stat(b.mountRoot)
	if err != nil {
		return &errdefs.ConfigurationError{Field: "storage.path", Reason: err.Error()}
	}
	if !fi.IsDir() {
		return &errdefs.ConfigurationError{Field: "storage.path", Reason: fmt.Sprintf("%s is not a directory", b.mountRoot)}
	}

	records, err := b.registry.Load()
	if err != nil {
		return err
	}

	b.allocator = metadata.NewAllocator()
	known := make(map[string]struct{}, len(records))
	for _, rec := range records {
		b.allocator.Reserve(rec.ProjectID)
		known[rec.VolumeID] = struct{}{}

		if want := b.Resolve(rec.VolumeID); rec.Path != want {
			klog.InfoS("Registered path differs from mount root layout", "volume", rec.VolumeID, "registered", rec.Path, "expected", want)
		}
		if _, err := os.Stat(rec.Path); err != nil {
			klog.ErrorS(err, "Registered volume directory is missing", "volume", rec.VolumeID, "id", rec.ProjectID, "path", rec.Path)
		}
	}
	b.reportUnregistered(known)

	if b.store != nil {
		b.store.Restore(records)
	}

	klog.InfoS("Volume backend initialized", "mountRoot", b.mountRoot, "volumes", len(records), "projectIDs", b.allocator.Len())
	return nil
}

// reportUnregistered logs directories left behind by an interrupted create.
// They are never deleted automatically.
func (b *QuotaFsBackend) reportUnregistered(known map[string]struct{}) {
	entries, err := os.ReadDir(b.mountRoot)
	if err != nil {
		klog.ErrorS(err, "Failed to scan mount root", "path", b.mountRoot)
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := known[e.Name()]; !ok {
			klog.InfoS("Directory under mount root has no registry record", "path", filepath.Join(b.mountRoot, e.Name()))
		}
	}
}

func (b *QuotaFsBackend) Create(ctx context.Context, volumeID, sizeLimit string) (path string, err error) {
	if err := ValidateVolumeID(volumeID); err != nil {
		return "", err
	}
	limitBytes, err := utils.ParseSize(sizeLimit)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.registry.Get(volumeID); ok {
		klog.V(2).InfoS("Volume already provisioned", "volume", volumeID, "id", rec.ProjectID, "path", rec.Path)
		return rec.Path, nil
	}

	rec := metadata.VolumeRecord{
		VolumeID:  volumeID,
		ProjectID: b.allocator.Allocate(),
		Path:      b.Resolve(volumeID),
	}

	// 失败时按相反顺序回滚已完成的步骤。某一步回滚失败就停下：
	// 记录仍在 registry 中时，目录和 project id 必须保留
	var undo []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			if rerr := undo[i](); rerr != nil {
				klog.ErrorS(rerr, "Rollback step failed, keeping remaining state", "volume", volumeID, "id", rec.ProjectID, "path", rec.Path)
				err = multierror.Append(err, rerr)
				break
			}
		}
		path = ""
	}()
	undo = append(undo, func() error {
		b.allocator.Release(rec.ProjectID)
		return nil
	})

	if err = os.Mkdir(rec.Path, volumeDirMode); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("volume directory %s already exists without a registry record, remove it before creating %q: %w", rec.Path, volumeID, err)
		}
		return "", fmt.Errorf("failed to create volume directory: %w", err)
	}
	undo = append(undo, func() error {
		if rerr := b.removeAll(rec.Path); rerr != nil {
			return fmt.Errorf("failed to remove volume directory %s: %w", rec.Path, rerr)
		}
		return nil
	})

	if err = os.Chown(rec.Path, b.uid, b.gid); err != nil {
		return "", fmt.Errorf("failed to chown volume directory: %w", err)
	}

	if err = b.registry.Append(rec); err != nil {
		return "", err
	}
	undo = append(undo, func() error {
		_, rerr := b.registry.RemoveByID(rec.VolumeID)
		return rerr
	})

	if err = b.qm.EnableProject(ctx, rec); err != nil {
		return "", err
	}
	// SetQuota 可能已生效但仍报错
	undo = append(undo, func() error {
		return b.qm.RemoveQuota(ctx, rec)
	})
	if err = b.qm.SetQuota(ctx, rec, limitBytes); err != nil {
		return "", err
	}

	if b.store != nil {
		b.store.TriggerUpdate(rec.ProjectID, rec.Info())
	}
	klog.InfoS("Volume created", "volume", volumeID, "id", rec.ProjectID, "path", rec.Path, "limit", limitBytes)
	return rec.Path, nil
}

func (b *QuotaFsBackend) Remove(ctx context.Context, volumeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.registry.Get(volumeID)
	if !ok {
		klog.V(2).InfoS("Volume not registered, nothing to remove", "volume", volumeID)
		return nil
	}

	// 先解除限额，再删除数据
	if err := b.qm.RemoveQuota(ctx, rec); err != nil {
		return err
	}
	if _, err := b.registry.RemoveByID(volumeID); err != nil {
		return err
	}

	rmErr := b.removeAll(rec.Path)
	b.allocator.Release(rec.ProjectID)
	if b.store != nil {
		b.store.TriggerDelete(rec.ProjectID)
	}
	if rmErr != nil {
		return fmt.Errorf("failed to delete volume directory %s: %w", rec.Path, rmErr)
	}

	klog.InfoS("Volume removed", "volume", volumeID, "id", rec.ProjectID)
	return nil
}

func (b *QuotaFsBackend) Resolve(volumeID string) string {
	return filepath.Join(b.mountRoot, volumeID)
}

func (b *QuotaFsBackend) Volumes() []metadata.VolumeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Records()
}
