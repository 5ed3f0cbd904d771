package volume

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/terminus-io/storage-agent/pkg/config"
	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/quota"
	"github.com/terminus-io/storage-agent/pkg/quota/xfs"
)

// Backend provisions quota-limited volumes on one filesystem.
type Backend interface {
	// Init loads persisted state. It must succeed before any other call.
	Init(ctx context.Context) error
	// Create provisions volumeID with a hard capacity limit and returns its
	// path. Creating an existing volume returns the existing path.
	Create(ctx context.Context, volumeID, sizeLimit string) (string, error)
	// Remove deletes volumeID and its data. Unknown ids are a no-op.
	Remove(ctx context.Context, volumeID string) error
	// Resolve returns the path volumeID has, or would have, on this node.
	Resolve(volumeID string) string
	// Volumes lists the provisioned volumes.
	Volumes() []metadata.VolumeRecord
}

// New builds the backend selected by storage.mode.
func New(cfg *config.Config, store *metadata.AsyncStore) (Backend, error) {
	switch cfg.Storage.Mode {
	case config.StorageModeXFS:
		runner := quota.NewExecRunner(cfg.Quota.Timeout, cfg.StrictStderr())
		qm := xfs.NewXFSCLI(runner, cfg.Storage.Path,
			xfs.WithBinary(cfg.Quota.Binary),
			xfs.WithProjectsFile(cfg.Storage.ProjectsFile),
			xfs.WithProjidFile(cfg.Storage.ProjidFile),
		)
		registry := metadata.NewRegistry(cfg.Storage.ProjectsFile, cfg.Storage.ProjidFile)
		return NewQuotaFsBackend(cfg.Storage.Path, registry, qm,
			WithOwner(cfg.Agent.UserUID, cfg.Agent.UserGID),
			WithStore(store),
		), nil
	case config.StorageModeBtrfs:
		return &UnimplementedBackend{Mode: cfg.Storage.Mode, MountRoot: cfg.Storage.Path}, nil
	default:
		return nil, &errdefs.ConfigurationError{Field: "storage.mode", Reason: fmt.Sprintf("unknown backend %q", cfg.Storage.Mode)}
	}
}

// ValidateVolumeID rejects ids that cannot be a single directory name or a
// registry table key.
func ValidateVolumeID(id string) error {
	switch {
	case id == "":
		return &errdefs.InvalidArgumentError{Argument: "volume id", Reason: "must not be empty"}
	case id == "." || id == "..":
		return &errdefs.InvalidArgumentError{Argument: "volume id", Reason: fmt.Sprintf("%q is reserved", id)}
	case strings.ContainsAny(id, "/:#"):
		return &errdefs.InvalidArgumentError{Argument: "volume id", Reason: fmt.Sprintf("%q contains '/', ':' or '#'", id)}
	case strings.IndexFunc(id, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0:
		return &errdefs.InvalidArgumentError{Argument: "volume id", Reason: fmt.Sprintf("%q contains whitespace", id)}
	}
	return nil
}
