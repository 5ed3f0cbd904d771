package etcd

import (
	"fmt"
	"strings"
	"time"

	"github.com/terminus-io/storage-agent/pkg/config"
	"go.etcd.io/etcd/client/v2"
	"k8s.io/klog/v2"
)

const headerTimeout = 5 * time.Second

// NewKeysAPI builds a keys client for the single endpoint in cfg.
func NewKeysAPI(cfg config.EtcdConfig) (client.KeysAPI, error) {
	endpoint := cfg.Addr
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	c, err := client.New(client.Config{
		Endpoints:               []string{endpoint},
		Transport:               client.DefaultTransport,
		Username:                cfg.User,
		Password:                cfg.Password,
		HeaderTimeoutPerRequest: headerTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client for %s: %w", endpoint, err)
	}
	klog.V(2).InfoS("Created etcd client", "endpoint", endpoint, "namespace", cfg.Namespace)

	return client.NewKeysAPI(c), nil
}
