package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/terminus-io/storage-agent/pkg/api"
	"github.com/terminus-io/storage-agent/pkg/config"
	"github.com/terminus-io/storage-agent/pkg/etcd"
	"github.com/terminus-io/storage-agent/pkg/exporter"
	"github.com/terminus-io/storage-agent/pkg/metadata"
	"github.com/terminus-io/storage-agent/pkg/reporter"
	"github.com/terminus-io/storage-agent/pkg/volume"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var (
	configPath   string
	debug        bool
	allowNonRoot bool
)

// rootCmd 定义根命令
var rootCmd = &cobra.Command{
	Use:          "terminus-storage-agent",
	Short:        "Terminus storage node agent",
	Long:         `Terminus storage agent provisions quota-limited volumes on this node and serves them over RPC.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if debug || cfg.Debug.Enabled {
			_ = flag.Set("v", "4")
			cfg.Dump()
		}

		if os.Geteuid() != 0 && !allowNonRoot {
			return errors.New("storage agent must be run as root, use --allow-non-root to override")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return runAgent(ctx, cfg)
	},
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	// 1. 组件初始化
	store := metadata.NewAsyncStore(1000)
	backend, err := volume.New(cfg, store)
	if err != nil {
		return err
	}

	var rpt *reporter.Reporter
	if cfg.Etcd.Addr != "" {
		kapi, err := etcd.NewKeysAPI(cfg.Etcd)
		if err != nil {
			return err
		}
		rpt = reporter.NewReporter(kapi, cfg.Etcd.Namespace, cfg.Agent.NodeID, cfg.Storage.Path, cfg.Agent.ReportEvery)
		if err := rpt.UpdateStatus(ctx, reporter.StatusStarting); err != nil {
			return err
		}
	}

	if err := backend.Init(ctx); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Agent.RPCListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Agent.RPCListenAddr, err)
	}
	srv := api.NewServer(backend)
	klog.InfoS("Started handling RPC requests", "address", cfg.Agent.RPCListenAddr, "mode", cfg.Agent.Mode)

	if rpt != nil {
		if err := rpt.Register(ctx, cfg.RPCHost(), cfg.Agent.Mode); err != nil {
			_ = lis.Close()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	// A. 启动 Metadata Store
	g.Go(func() error {
		klog.Info("Starting Metadata Store...")
		store.Run(ctx)
		return nil
	})

	// B. 启动 Reporter
	if rpt != nil {
		g.Go(func() error {
			klog.Info("Starting Reporter...")
			rpt.Run(ctx)
			return nil
		})
	}

	// C. 启动 Metrics
	if cfg.Metrics.ListenAddr != "" {
		reg := exporter.NewRegistry(newCollector(cfg, backend, store), backend)
		g.Go(func() error {
			return exporter.StartMetricsServer(ctx, reg, backend, cfg.Metrics.ListenAddr)
		})
	}

	// D. 启动 RPC 服务 (核心进程)
	g.Go(func() error {
		return srv.Run(ctx, lis)
	})

	// 只要任意一个组件返回 error，或者收到 SIGTERM，Wait 就会返回
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		klog.ErrorS(err, "Terminus storage agent exited with error")
		return err
	}

	klog.Info("Terminus storage agent stopped gracefully")
	return nil
}

func newCollector(cfg *config.Config, backend volume.Backend, store *metadata.AsyncStore) prometheus.Collector {
	if cfg.Metrics.Source == config.MetricsSourceQuotactl {
		return exporter.NewStandardCollector(cfg.Storage.Path, store)
	}
	qb, ok := backend.(*volume.QuotaFsBackend)
	if !ok {
		return nil
	}
	return exporter.NewXFSCollector(qb.MountRoot(), qb.QuotaManager(), store)
}

// Execute 是 main.go 调用的函数
func Execute() error {
	return rootCmd.Execute()
}

// init 初始化 Flags
func init() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	_ = flag.Set("logtostderr", "true")

	rootCmd.Flags().StringVarP(&configPath, "config", "f", "", "path to the agent configuration file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging and dump the effective configuration")
	rootCmd.Flags().BoolVar(&allowNonRoot, "allow-non-root", false, "allow running without root privileges")

	rootCmd.AddCommand(newHelloCommand(), newCreateCommand(), newRemoveCommand(), newResolveCommand())
}
