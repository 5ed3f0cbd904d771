package xfs

import (
	"context"
	"fmt"

	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/quota"
	"k8s.io/klog/v2"
)

const DefaultBinary = "xfs_quota"

// XFSCLI manages project quotas through the xfs_quota expert commands.
// Projects are addressed by name, so the projects/projid tables must list a
// volume before any command touches it.
type XFSCLI struct {
	runner       quota.Runner
	binary       string
	mountPoint   string
	projectsFile string
	projidFile   string
}

type Option func(*XFSCLI)

func WithBinary(b string) Option       { return func(m *XFSCLI) { m.binary = b } }
func WithProjectsFile(p string) Option { return func(m *XFSCLI) { m.projectsFile = p } }
func WithProjidFile(p string) Option   { return func(m *XFSCLI) { m.projidFile = p } }

func NewXFSCLI(runner quota.Runner, mountPoint string, opts ...Option) *XFSCLI {
	m := &XFSCLI{
		runner:       runner,
		binary:       DefaultBinary,
		mountPoint:   mountPoint,
		projectsFile: metadata.DefaultProjectsFile,
		projidFile:   metadata.DefaultProjidFile,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *XFSCLI) EnableProject(ctx context.Context, rec metadata.VolumeRecord) error {
	klog.V(4).InfoS("Exec: EnableProject", "volume", rec.VolumeID, "id", rec.ProjectID, "path", rec.Path)
	if _, err := m.expert(ctx, fmt.Sprintf("project -s %s", rec.VolumeID)); err != nil {
		return fmt.Errorf("failed to set up project %d for %s: %w", rec.ProjectID, rec.VolumeID, err)
	}
	return nil
}

func (m *XFSCLI) SetQuota(ctx context.Context, rec metadata.VolumeRecord, limitBytes uint64) error {
	klog.V(4).InfoS("Exec: SetQuota", "volume", rec.VolumeID, "id", rec.ProjectID, "limit", limitBytes)
	if _, err := m.expert(ctx, fmt.Sprintf("limit -p bhard=%d %s", limitBytes, rec.VolumeID)); err != nil {
		return fmt.Errorf("failed to set quota for %s: %w", rec.VolumeID, err)
	}
	return nil
}

func (m *XFSCLI) RemoveQuota(ctx context.Context, rec metadata.VolumeRecord) error {
	klog.V(4).InfoS("Exec: RemoveQuota", "volume", rec.VolumeID, "id", rec.ProjectID)
	cmdStr := fmt.Sprintf("limit -p bsoft=0 bhard=0 isoft=0 ihard=0 %s", rec.VolumeID)
	if _, err := m.expert(ctx, cmdStr); err != nil {
		return fmt.Errorf("failed to remove quota for id %d: %w", rec.ProjectID, err)
	}
	return nil
}

func (m *XFSCLI) expert(ctx context.Context, command string) (string, error) {
	args := []string{
		"-x",
		"-D", m.projectsFile,
		"-P", m.projidFile,
		"-c", command,
		m.mountPoint,
	}
	return m.runner.Run(ctx, m.binary, args...)
}
