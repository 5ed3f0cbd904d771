package xfs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/quota"
)

func (m *XFSCLI) FetchAllReports(ctx context.Context, typeFlag string) (map[metadata.ProjectID]quota.QuotaReport, error) {
	out, err := m.expert(ctx, fmt.Sprintf("report -p -n -N -%s", typeFlag))
	if err != nil {
		return nil, fmt.Errorf("xfs_quota report failed: %w", err)
	}
	return parseReport(out, typeFlag), nil
}

// parseReport reads `report -n -N` output: "#<id> <used> <soft> <hard> ...".
// Block figures are 1KiB units.
func parseReport(out string, typeFlag string) map[metadata.ProjectID]quota.QuotaReport {
	unit := uint64(1)
	if typeFlag == quota.BlockReport {
		unit = 1024
	}

	reports := make(map[metadata.ProjectID]quota.QuotaReport)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		idStr := strings.TrimPrefix(fields[0], "#")
		idUint, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil || idUint == 0 {
			continue
		}

		// 列数因版本而异: ID Used Soft Hard ...
		used, _ := strconv.ParseUint(fields[1], 10, 64)

		var limit uint64
		if len(fields) >= 4 {
			limit, _ = strconv.ParseUint(fields[3], 10, 64)
		} else {
			limit, _ = strconv.ParseUint(fields[2], 10, 64)
		}

		id := metadata.ProjectID(idUint)
		reports[id] = quota.QuotaReport{
			ID:    id,
			Used:  used * unit,
			Limit: limit * unit,
		}
	}
	return reports
}
