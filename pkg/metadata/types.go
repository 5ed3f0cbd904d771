package metadata

// ProjectID is the XFS project quota id grouping all inodes of one volume.
type ProjectID uint32

// VolumeRecord 一个已登记 volume 的完整描述，创建后不再修改
type VolumeRecord struct {
	VolumeID  string    `json:"volume_id"`
	ProjectID ProjectID `json:"project_id"`
	Path      string    `json:"path"`
}

// VolumeInfo labels quota metrics for one project id.
type VolumeInfo struct {
	ProjectID ProjectID `json:"project_id"`
	VolumeID  string    `json:"volume_id"`
	Path      string    `json:"path"`
}

func (r VolumeRecord) Info() VolumeInfo {
	return VolumeInfo{ProjectID: r.ProjectID, VolumeID: r.VolumeID, Path: r.Path}
}
