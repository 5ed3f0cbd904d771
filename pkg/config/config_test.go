package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminus-io/storage-agent/pkg/errdefs"
)

const sampleConfig = `
[etcd]
namespace = "prod"
addr = "10.0.0.2:2379"

[agent]
node-id = "storage-01"
mode = "vfolder"
rpc-listen-addr = "10.0.0.5:6020"
user-uid = 1000
user-gid = 1001

[storage]
mode = "xfs"
path = "/vfroot/"

[quota]
command-timeout = "10s"
strict-stderr = false
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Etcd.Namespace)
	assert.Equal(t, "storage-01", cfg.Agent.NodeID)
	assert.Equal(t, AgentModeVFolder, cfg.Agent.Mode)
	assert.Equal(t, 1000, cfg.Agent.UserUID)
	assert.Equal(t, 1001, cfg.Agent.UserGID)
	assert.Equal(t, "/vfroot", cfg.Storage.Path)
	assert.Equal(t, "/etc/projects", cfg.Storage.ProjectsFile)
	assert.Equal(t, "/etc/projid", cfg.Storage.ProjidFile)
	assert.Equal(t, 10*time.Second, cfg.Quota.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Agent.ReportEvery)
	assert.False(t, cfg.StrictStderr())
	assert.Equal(t, MetricsSourceXFSQuota, cfg.Metrics.Source)
	assert.Equal(t, "10.0.0.5", cfg.RPCHost())
}

func TestParse_StrictStderrDefaultsOn(t *testing.T) {
	cfg, err := Parse([]byte(`
[agent]
rpc-listen-addr = "127.0.0.1:6020"
[storage]
path = "/vfroot"
`))
	require.NoError(t, err)
	assert.True(t, cfg.StrictStderr())
	assert.Equal(t, StorageModeXFS, cfg.Storage.Mode)
	assert.Equal(t, AgentModeScratch, cfg.Agent.Mode)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("BACKEND_NAMESPACE", "staging")
	t.Setenv("BACKEND_ETCD_ADDR", "10.1.1.1:2379")
	t.Setenv("BACKEND_AGENT_HOST_OVERRIDE", "10.0.0.9")
	t.Setenv("BACKEND_AGENT_PORT", "7000")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Etcd.Namespace)
	assert.Equal(t, "10.1.1.1:2379", cfg.Etcd.Addr)
	assert.Equal(t, "10.0.0.9:7000", cfg.Agent.RPCListenAddr)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad toml", body: "[agent\n"},
		{name: "unknown storage mode", body: "[agent]\nrpc-listen-addr = \"127.0.0.1:1\"\n[storage]\nmode = \"zfs\"\npath = \"/v\"\n"},
		{name: "unknown agent mode", body: "[agent]\nmode = \"x\"\nrpc-listen-addr = \"127.0.0.1:1\"\n[storage]\npath = \"/v\"\n"},
		{name: "missing path", body: "[agent]\nrpc-listen-addr = \"127.0.0.1:1\"\n"},
		{name: "relative path", body: "[agent]\nrpc-listen-addr = \"127.0.0.1:1\"\n[storage]\npath = \"v\"\n"},
		{name: "unspecified host", body: "[agent]\nrpc-listen-addr = \"0.0.0.0:6020\"\n[storage]\npath = \"/v\"\n"},
		{name: "link local host", body: "[agent]\nrpc-listen-addr = \"169.254.1.1:6020\"\n[storage]\npath = \"/v\"\n"},
		{name: "missing port", body: "[agent]\nrpc-listen-addr = \"10.0.0.1\"\n[storage]\npath = \"/v\"\n"},
		{name: "negative uid", body: "[agent]\nrpc-listen-addr = \"127.0.0.1:1\"\nuser-uid = -1\n[storage]\npath = \"/v\"\n"},
		{name: "bad timeout", body: "[agent]\nrpc-listen-addr = \"127.0.0.1:1\"\n[storage]\npath = \"/v\"\n[quota]\ncommand-timeout = \"soon\"\n"},
		{name: "bad metrics source", body: "[agent]\nrpc-listen-addr = \"127.0.0.1:1\"\n[storage]\npath = \"/v\"\n[metrics]\nsource = \"du\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errdefs.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errdefs.IsConfiguration(err))
}
