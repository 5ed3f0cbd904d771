package volume

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"github.com/terminus-io/storage-agent/pkg/metadata"
)

// UnimplementedBackend stands in for a declared storage mode (btrfs) that has
// no implementation yet. Every mutating call fails with a ConfigurationError
// so the agent refuses to start instead of accepting requests it cannot serve.
type UnimplementedBackend struct {
	Mode      string
	MountRoot string
}

func (b *UnimplementedBackend) err() error {
	return &errdefs.ConfigurationError{Field: "storage.mode", Reason: fmt.Sprintf("backend %q is not implemented", b.Mode)}
}

func (b *UnimplementedBackend) Init(context.Context) error { return b.err() }

func (b *UnimplementedBackend) Create(context.Context, string, string) (string, error) {
	return "", b.err()
}

func (b *UnimplementedBackend) Remove(context.Context, string) error { return b.err() }

func (b *UnimplementedBackend) Resolve(volumeID string) string {
	return filepath.Join(b.MountRoot, volumeID)
}

func (b *UnimplementedBackend) Volumes() []metadata.VolumeRecord { return nil }
