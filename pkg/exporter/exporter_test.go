package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/quota"
)

type fakeReports struct {
	blocks map[metadata.ProjectID]quota.QuotaReport
	inodes map[metadata.ProjectID]quota.QuotaReport
	err    error
}

func (f *fakeReports) EnableProject(context.Context, metadata.VolumeRecord) error { return nil }
func (f *fakeReports) SetQuota(context.Context, metadata.VolumeRecord, uint64) error {
	return nil
}
func (f *fakeReports) RemoveQuota(context.Context, metadata.VolumeRecord) error { return nil }

func (f *fakeReports) FetchAllReports(_ context.Context, typeFlag string) (map[metadata.ProjectID]quota.QuotaReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	if typeFlag == quota.BlockReport {
		return f.blocks, nil
	}
	return f.inodes, nil
}

type staticLister []metadata.VolumeRecord

func (l staticLister) Volumes() []metadata.VolumeRecord { return l }

func seededStore() *metadata.AsyncStore {
	store := metadata.NewAsyncStore(1)
	store.Restore([]metadata.VolumeRecord{{VolumeID: "kA", ProjectID: 1, Path: "/vfroot/kA"}})
	return store
}

func TestXFSCollector(t *testing.T) {
	qm := &fakeReports{
		blocks: map[metadata.ProjectID]quota.QuotaReport{
			1: {ID: 1, Used: 2048, Limit: 4096},
			// 未登记的项目不导出
			9: {ID: 9, Used: 1, Limit: 1},
		},
		inodes: map[metadata.ProjectID]quota.QuotaReport{
			1: {ID: 1, Used: 3, Limit: 0},
		},
	}
	c := NewXFSCollector("/vfroot", qm, seededStore())

	expected := `
# HELP terminus_storage_used_bytes Storage usage in bytes per volume
# TYPE terminus_storage_used_bytes gauge
terminus_storage_used_bytes{mount_point="/vfroot",project_id="1",volume_id="kA"} 2048
# HELP terminus_storage_limit_bytes Storage hard limit in bytes per volume
# TYPE terminus_storage_limit_bytes gauge
terminus_storage_limit_bytes{mount_point="/vfroot",project_id="1",volume_id="kA"} 4096
# HELP terminus_storage_inodes_used Inode usage count per volume
# TYPE terminus_storage_inodes_used gauge
terminus_storage_inodes_used{mount_point="/vfroot",project_id="1",volume_id="kA"} 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"terminus_storage_used_bytes", "terminus_storage_limit_bytes", "terminus_storage_inodes_used")
	assert.NoError(t, err)
	assert.Equal(t, 4, testutil.CollectAndCount(c))
}

func TestXFSCollector_ReportFailure(t *testing.T) {
	c := NewXFSCollector("/vfroot", &fakeReports{err: errors.New("boom")}, seededStore())
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestObserveRPC(t *testing.T) {
	before := testutil.ToFloat64(RPCRequestsTotal.WithLabelValues("Create", "OK"))
	ObserveRPC("Create", "OK", 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(RPCRequestsTotal.WithLabelValues("Create", "OK")))
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lister := staticLister{{VolumeID: "kA", ProjectID: 1, Path: "/vfroot/kA"}}
	reg := NewRegistry(nil, lister)
	r := NewRouter(reg, lister)

	t.Run("healthz", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("volumes", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/volumes", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Volumes []metadata.VolumeRecord `json:"volumes"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, []metadata.VolumeRecord(lister), body.Volumes)
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "terminus_storage_volumes_total 1")
	})
}
