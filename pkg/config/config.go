package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"k8s.io/klog/v2"
)

const (
	StorageModeXFS   = "xfs"
	StorageModeBtrfs = "btrfs"

	AgentModeScratch = "scratch"
	AgentModeVFolder = "vfolder"

	MetricsSourceXFSQuota = "xfs_quota"
	MetricsSourceQuotactl = "quotactl"

	defaultReportInterval = 30 * time.Second
	defaultCommandTimeout = 30 * time.Second
)

// DefaultSearchPaths are tried in order when no --config is given.
var DefaultSearchPaths = []string{
	"storage-agent.toml",
	"/etc/terminus/storage-agent.toml",
}

type Config struct {
	Etcd    EtcdConfig    `toml:"etcd"`
	Agent   AgentConfig   `toml:"agent"`
	Storage StorageConfig `toml:"storage"`
	Quota   QuotaConfig   `toml:"quota"`
	Metrics MetricsConfig `toml:"metrics"`
	Debug   DebugConfig   `toml:"debug"`

	// Source is the file the configuration was read from.
	Source string `toml:"-"`
}

type EtcdConfig struct {
	Namespace string `toml:"namespace"`
	Addr      string `toml:"addr"`
	User      string `toml:"user"`
	Password  string `toml:"password"`
}

type AgentConfig struct {
	NodeID         string `toml:"node-id"`
	Mode           string `toml:"mode"`
	RPCListenAddr  string `toml:"rpc-listen-addr"`
	UserUID        int    `toml:"user-uid"`
	UserGID        int    `toml:"user-gid"`
	ReportInterval string `toml:"report-interval"`

	ReportEvery time.Duration `toml:"-"`
}

type StorageConfig struct {
	Mode         string `toml:"mode"`
	Path         string `toml:"path"`
	ProjectsFile string `toml:"projects-file"`
	ProjidFile   string `toml:"projid-file"`
}

type QuotaConfig struct {
	Binary         string `toml:"binary"`
	CommandTimeout string `toml:"command-timeout"`
	// StrictStderr treats any stderr output of the quota tool as failure.
	StrictStderr *bool `toml:"strict-stderr"`

	Timeout time.Duration `toml:"-"`
}

type MetricsConfig struct {
	ListenAddr string `toml:"listen-addr"`
	Source     string `toml:"source"`
}

type DebugConfig struct {
	Enabled bool `toml:"enabled"`
}

// Load reads path, or the first existing default location when path is
// empty, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, p := range DefaultSearchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return nil, &errdefs.ConfigurationError{Reason: fmt.Sprintf("no configuration file found in %v", DefaultSearchPaths)}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errdefs.ConfigurationError{Field: "config", Reason: fmt.Sprintf("%s does not exist", path)}
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Source, _ = filepath.Abs(path)
	return cfg, nil
}

// Parse decodes TOML data, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &errdefs.ConfigurationError{Reason: fmt.Sprintf("invalid TOML: %v", err)}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("BACKEND_NAMESPACE"); ok {
		c.Etcd.Namespace = v
	}
	if v, ok := lookup("BACKEND_ETCD_ADDR"); ok {
		c.Etcd.Addr = v
	}
	if v, ok := lookup("BACKEND_ETCD_USER"); ok {
		c.Etcd.User = v
	}
	if v, ok := lookup("BACKEND_ETCD_PASSWORD"); ok {
		c.Etcd.Password = v
	}

	hostOverride, hasHost := lookup("BACKEND_AGENT_HOST_OVERRIDE")
	portOverride, hasPort := lookup("BACKEND_AGENT_PORT")
	if !hasHost && !hasPort {
		return nil
	}

	host, port, err := net.SplitHostPort(c.Agent.RPCListenAddr)
	if err != nil && c.Agent.RPCListenAddr != "" {
		return &errdefs.ConfigurationError{Field: "agent.rpc-listen-addr", Reason: err.Error()}
	}
	if hasHost {
		host = hostOverride
	}
	if hasPort {
		port = portOverride
	}
	c.Agent.RPCListenAddr = net.JoinHostPort(host, port)
	return nil
}

func (c *Config) SetDefaults() {
	if c.Agent.Mode == "" {
		c.Agent.Mode = AgentModeScratch
	}
	if c.Agent.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Agent.NodeID = host
		}
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = StorageModeXFS
	}
	if c.Storage.ProjectsFile == "" {
		c.Storage.ProjectsFile = "/etc/projects"
	}
	if c.Storage.ProjidFile == "" {
		c.Storage.ProjidFile = "/etc/projid"
	}
	if c.Quota.Binary == "" {
		c.Quota.Binary = "xfs_quota"
	}
	if c.Quota.StrictStderr == nil {
		strict := true
		c.Quota.StrictStderr = &strict
	}
	if c.Metrics.Source == "" {
		c.Metrics.Source = MetricsSourceXFSQuota
	}
	if c.Etcd.Namespace == "" {
		c.Etcd.Namespace = "local"
	}
}

// Validate checks every field the agent depends on and fills the parsed
// durations.
func (c *Config) Validate() error {
	switch c.Agent.Mode {
	case AgentModeScratch, AgentModeVFolder:
	default:
		return invalid("agent.mode", "must be %q or %q, got %q", AgentModeScratch, AgentModeVFolder, c.Agent.Mode)
	}

	if err := validateListenHost(c.Agent.RPCListenAddr); err != nil {
		return err
	}
	if c.Agent.UserUID < 0 {
		return invalid("agent.user-uid", "must not be negative")
	}
	if c.Agent.UserGID < 0 {
		return invalid("agent.user-gid", "must not be negative")
	}

	switch c.Storage.Mode {
	case StorageModeXFS, StorageModeBtrfs:
	default:
		return invalid("storage.mode", "must be %q or %q, got %q", StorageModeXFS, StorageModeBtrfs, c.Storage.Mode)
	}
	if c.Storage.Path == "" {
		return invalid("storage.path", "is required")
	}
	if !filepath.IsAbs(c.Storage.Path) {
		return invalid("storage.path", "%q is not absolute", c.Storage.Path)
	}
	c.Storage.Path = filepath.Clean(c.Storage.Path)
	if !filepath.IsAbs(c.Storage.ProjectsFile) || !filepath.IsAbs(c.Storage.ProjidFile) {
		return invalid("storage.projects-file", "registry tables need absolute paths")
	}

	var err error
	if c.Quota.Timeout, err = parseDuration("quota.command-timeout", c.Quota.CommandTimeout, defaultCommandTimeout); err != nil {
		return err
	}
	if c.Agent.ReportEvery, err = parseDuration("agent.report-interval", c.Agent.ReportInterval, defaultReportInterval); err != nil {
		return err
	}

	switch c.Metrics.Source {
	case MetricsSourceXFSQuota, MetricsSourceQuotactl:
	default:
		return invalid("metrics.source", "must be %q or %q, got %q", MetricsSourceXFSQuota, MetricsSourceQuotactl, c.Metrics.Source)
	}

	if c.Etcd.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Etcd.Addr); err != nil {
			return invalid("etcd.addr", "%v", err)
		}
	}
	return nil
}

func (c *Config) StrictStderr() bool {
	return c.Quota.StrictStderr == nil || *c.Quota.StrictStderr
}

// RPCHost returns the host part of the RPC listen address, the address
// advertised to the orchestrator.
func (c *Config) RPCHost() string {
	host, _, _ := net.SplitHostPort(c.Agent.RPCListenAddr)
	return host
}

// validateListenHost rejects unspecified and link-local hosts: the address is
// advertised to other nodes and must be reachable.
func validateListenHost(addr string) error {
	if addr == "" {
		return invalid("agent.rpc-listen-addr", "is required")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return invalid("agent.rpc-listen-addr", "%v", err)
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return invalid("agent.rpc-listen-addr", "invalid port %q", port)
	}
	if host == "" {
		return invalid("agent.rpc-listen-addr", "host is required")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return invalid("agent.rpc-listen-addr", "cannot use link-local or unspecified IP address %s", host)
		}
	}
	return nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, invalid(field, "%v", err)
	}
	if d <= 0 {
		return 0, invalid(field, "must be positive")
	}
	return d, nil
}

func invalid(field, format string, args ...any) error {
	return &errdefs.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Dump logs the effective configuration with secrets masked.
func (c *Config) Dump() {
	masked := *c
	if masked.Etcd.Password != "" {
		masked.Etcd.Password = "******"
	}
	data, err := toml.Marshal(masked)
	if err != nil {
		klog.ErrorS(err, "Failed to render configuration")
		return
	}
	klog.Infof("== Agent configuration ==\n%s", data)
}
