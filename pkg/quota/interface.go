package quota

import (
	"context"

	"github.com/terminus-io/storage-agent/pkg/metadata"
)

const (
	BlockReport = "b"
	InodeReport = "i"
)

// QuotaManager drives the project quota tooling of one filesystem.
// Projects are addressed by volume id, which the registry tables map to a
// project id and a directory.
type QuotaManager interface {
	// EnableProject marks the volume directory tree as belonging to its project.
	EnableProject(ctx context.Context, rec metadata.VolumeRecord) error
	SetQuota(ctx context.Context, rec metadata.VolumeRecord, limitBytes uint64) error
	// RemoveQuota clears every limit of the project.
	RemoveQuota(ctx context.Context, rec metadata.VolumeRecord) error
	FetchAllReports(ctx context.Context, typeFlag string) (map[metadata.ProjectID]QuotaReport, error)
}

// QuotaReport is one project's usage in bytes (block report) or inodes.
type QuotaReport struct {
	ID    metadata.ProjectID
	Used  uint64
	Limit uint64
}
