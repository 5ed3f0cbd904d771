package metadata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"k8s.io/klog/v2"
)

const (
	DefaultProjectsFile = "/etc/projects"
	DefaultProjidFile   = "/etc/projid"

	tableMode = 0o644
)

// Registry is the durable volumeId -> projectId -> path mapping kept in the
// two tables xfs_quota reads: projects (projectId:path) and projid
// (volumeId:projectId). Every mutation rewrites both tables in full; the
// in-memory view only changes once both rewrites have landed.
type Registry struct {
	projectsPath string
	projidPath   string

	records []VolumeRecord
	byID    map[string]int

	// replaced in tests
	writeFile func(path string, data []byte) error
}

func NewRegistry(projectsPath, projidPath string) *Registry {
	if projectsPath == "" {
		projectsPath = DefaultProjectsFile
	}
	if projidPath == "" {
		projidPath = DefaultProjidFile
	}
	return &Registry{
		projectsPath: projectsPath,
		projidPath:   projidPath,
		byID:         make(map[string]int),
		writeFile:    atomicWrite,
	}
}

func (r *Registry) ProjectsPath() string { return r.projectsPath }
func (r *Registry) ProjidPath() string   { return r.projidPath }

// Load creates missing tables and rebuilds the record set from the projid
// table, resolving each project's path through the projects table.
func (r *Registry) Load() ([]VolumeRecord, error) {
	for _, p := range []string{r.projectsPath, r.projidPath} {
		if err := ensureTable(p); err != nil {
			return nil, err
		}
	}

	paths, err := r.readProjects()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.projidPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.projidPath, err)
	}

	var (
		records  []VolumeRecord
		byID     = make(map[string]int)
		seenProj = make(map[ProjectID]string)
	)
	err = scanTable(data, func(lineNo int, key, value string) error {
		id, err := parseProjectID(value)
		if err != nil {
			return r.corrupt(r.projidPath, lineNo, err.Error())
		}
		if _, dup := byID[key]; dup {
			return r.corrupt(r.projidPath, lineNo, fmt.Sprintf("duplicate volume %q", key))
		}
		if owner, dup := seenProj[id]; dup {
			return r.corrupt(r.projidPath, lineNo, fmt.Sprintf("project %d already assigned to %q", id, owner))
		}
		path, ok := paths[id]
		if !ok {
			return r.corrupt(r.projidPath, lineNo, fmt.Sprintf("project %d of volume %q has no entry in %s", id, key, r.projectsPath))
		}
		seenProj[id] = key
		byID[key] = len(records)
		records = append(records, VolumeRecord{VolumeID: key, ProjectID: id, Path: path})
		return nil
	}, func(lineNo int) error {
		return r.corrupt(r.projidPath, lineNo, "expected volumeId:projectId")
	})
	if err != nil {
		return nil, err
	}

	for id, path := range paths {
		if _, ok := seenProj[id]; !ok {
			klog.InfoS("Dropping unreferenced project entry on next rewrite", "table", r.projectsPath, "project", id, "path", path)
		}
	}

	r.records = records
	r.byID = byID
	klog.V(2).InfoS("Registry loaded", "projid", r.projidPath, "projects", r.projectsPath, "volumes", len(records))
	return r.Records(), nil
}

func (r *Registry) readProjects() (map[ProjectID]string, error) {
	data, err := os.ReadFile(r.projectsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.projectsPath, err)
	}

	paths := make(map[ProjectID]string)
	err = scanTable(data, func(lineNo int, key, value string) error {
		id, err := parseProjectID(key)
		if err != nil {
			return r.corrupt(r.projectsPath, lineNo, err.Error())
		}
		if _, dup := paths[id]; dup {
			return r.corrupt(r.projectsPath, lineNo, fmt.Sprintf("duplicate project %d", id))
		}
		if !filepath.IsAbs(value) {
			return r.corrupt(r.projectsPath, lineNo, fmt.Sprintf("path %q is not absolute", value))
		}
		paths[id] = value
		return nil
	}, func(lineNo int) error {
		return r.corrupt(r.projectsPath, lineNo, "expected projectId:path")
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// Get returns the record registered for volumeID.
func (r *Registry) Get(volumeID string) (VolumeRecord, bool) {
	i, ok := r.byID[volumeID]
	if !ok {
		return VolumeRecord{}, false
	}
	return r.records[i], true
}

// Records returns a copy of the registered records in registration order.
func (r *Registry) Records() []VolumeRecord {
	out := make([]VolumeRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *Registry) Len() int { return len(r.records) }

// Append durably registers rec. The projects table is written first so an
// interrupted append can only leave an unreferenced path entry behind.
func (r *Registry) Append(rec VolumeRecord) error {
	if _, ok := r.byID[rec.VolumeID]; ok {
		return fmt.Errorf("volume %q is already registered", rec.VolumeID)
	}
	for _, cur := range r.records {
		if cur.ProjectID == rec.ProjectID {
			return fmt.Errorf("project %d is already assigned to %q", rec.ProjectID, cur.VolumeID)
		}
	}

	next := append(r.Records(), rec)
	if err := r.writeFile(r.projectsPath, encodeProjects(next)); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.projectsPath, err)
	}
	if err := r.writeFile(r.projidPath, encodeProjid(next)); err != nil {
		// 尽量恢复 projects 表，失败也只会留下无引用的条目
		if rerr := r.writeFile(r.projectsPath, encodeProjects(r.records)); rerr != nil {
			klog.ErrorS(rerr, "Failed to restore projects table", "path", r.projectsPath)
		}
		return fmt.Errorf("failed to write %s: %w", r.projidPath, err)
	}

	r.commit(next)
	return nil
}

// RemoveByID drops the record of volumeID from both tables. The projid table
// is written first, mirroring Append.
func (r *Registry) RemoveByID(volumeID string) (VolumeRecord, error) {
	i, ok := r.byID[volumeID]
	if !ok {
		return VolumeRecord{}, &errdefs.NotFoundError{VolumeID: volumeID}
	}
	rec := r.records[i]

	next := make([]VolumeRecord, 0, len(r.records)-1)
	for _, cur := range r.records {
		if cur.VolumeID == volumeID || cur.ProjectID == rec.ProjectID {
			continue
		}
		next = append(next, cur)
	}

	if err := r.writeFile(r.projidPath, encodeProjid(next)); err != nil {
		return VolumeRecord{}, fmt.Errorf("failed to write %s: %w", r.projidPath, err)
	}
	if err := r.writeFile(r.projectsPath, encodeProjects(next)); err != nil {
		// projid 已经生效，记录视为删除；projects 中残留的条目下次重写时清理
		klog.ErrorS(err, "Failed to rewrite projects table after removal", "path", r.projectsPath, "volume", volumeID)
	}

	r.commit(next)
	return rec, nil
}

func (r *Registry) commit(next []VolumeRecord) {
	byID := make(map[string]int, len(next))
	for i, rec := range next {
		byID[rec.VolumeID] = i
	}
	r.records = next
	r.byID = byID
}

func (r *Registry) corrupt(path string, line int, reason string) error {
	return &errdefs.StateCorruptionError{Path: path, Line: line, Reason: reason}
}

func encodeProjects(records []VolumeRecord) []byte {
	var buf bytes.Buffer
	for _, rec := range records {
		fmt.Fprintf(&buf, "%d:%s\n", rec.ProjectID, rec.Path)
	}
	return buf.Bytes()
}

func encodeProjid(records []VolumeRecord) []byte {
	var buf bytes.Buffer
	for _, rec := range records {
		fmt.Fprintf(&buf, "%s:%d\n", rec.VolumeID, rec.ProjectID)
	}
	return buf.Bytes()
}

// scanTable calls fn for every key:value line, skipping blank lines and
// comments. Lines without a separator or with an empty side go to malformed.
func scanTable(data []byte, fn func(lineNo int, key, value string) error, malformed func(lineNo int) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || key == "" || value == "" {
			return malformed(lineNo)
		}
		if err := fn(lineNo, key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseProjectID(s string) (ProjectID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", s)
	}
	if v == 0 {
		return 0, errors.New("project id 0 is reserved")
	}
	return ProjectID(v), nil
}

func ensureTable(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	klog.InfoS("Creating empty registry table", "path", path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, tableMode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f.Close()
}

func atomicWrite(path string, data []byte) error {
	return renameio.WriteFile(path, data, tableMode)
}
