package exporter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

// NewRouter serves /metrics, /healthz and a read-only /volumes listing.
func NewRouter(reg *prometheus.Registry, lister VolumeLister) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/volumes", func(c *gin.Context) {
		if lister == nil {
			c.JSON(http.StatusOK, gin.H{"volumes": []any{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"volumes": lister.Volumes()})
	})
	return r
}

func StartMetricsServer(ctx context.Context, reg *prometheus.Registry, lister VolumeLister, metricsAddr string) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{Addr: metricsAddr, Handler: NewRouter(reg, lister)}

	go func() {
		<-ctx.Done()
		klog.Info("Shutting down metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	klog.InfoS("Listening metrics", "address", metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
