package xfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/quota"
)

const blockReport = `#0          0          0          0     00 [--------]
#1       2048          0    4882812     00 [--------]
#3         12          0       1024     00 [--------]
garbage line
`

func TestFetchAllReports_Blocks(t *testing.T) {
	r := &recordingRunner{output: blockReport}
	reports, err := newTestCLI(r).FetchAllReports(context.Background(), quota.BlockReport)
	require.NoError(t, err)

	assert.Equal(t, "report -p -n -N -b", r.calls[0][7])
	assert.Len(t, reports, 2)
	assert.Equal(t, quota.QuotaReport{ID: 1, Used: 2048 * 1024, Limit: 4882812 * 1024}, reports[1])
	assert.Equal(t, uint64(12*1024), reports[3].Used)
}

func TestParseReport_Inodes(t *testing.T) {
	reports := parseReport("#4  17  0  100  00 [--------]\n#5 3 9\n", quota.InodeReport)

	assert.Equal(t, quota.QuotaReport{ID: 4, Used: 17, Limit: 100}, reports[metadata.ProjectID(4)])
	assert.Equal(t, quota.QuotaReport{ID: 5, Used: 3, Limit: 9}, reports[metadata.ProjectID(5)])
}
