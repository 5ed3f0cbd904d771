package utils

import (
	"golang.org/x/sys/unix"
)

// DiskStatus 用于存储磁盘空间信息 (单位: 字节)
type DiskStatus struct {
	Total     uint64 // 总容量
	Used      uint64 // 已使用
	Free      uint64 // 剩余可用 (对非 root 用户)
	BlockSize uint64 // 块大小
}

// GetDiskUsage 获取指定目录所在磁盘/分区的空间使用情况
func GetDiskUsage(path string) (DiskStatus, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return DiskStatus{}, err
	}

	blockSize := uint64(fs.Bsize)

	ds := DiskStatus{BlockSize: blockSize}
	ds.Total = fs.Blocks * blockSize
	ds.Free = fs.Bavail * blockSize
	ds.Used = ds.Total - fs.Bfree*blockSize

	return ds, nil
}
