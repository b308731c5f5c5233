package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/catalog"
	"github.com/jbweber/vlab-avamar/internal/config"
	"github.com/jbweber/vlab-avamar/internal/libvirt"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/storage"
	"github.com/jbweber/vlab-avamar/internal/tasks"
)

// drainTimeout bounds how long shutdown waits for running tasks.
const drainTimeout = 30 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve appliance tasks",
	Long: `Run the task worker on a libvirt host.

The worker ensures the images and machines storage pools exist, subscribes
to the submit queue and its own status subject on NATS, and runs tasks on a
bounded pool. Task records are kept in the result store so clients can poll
them by handle. Prometheus metrics are served on metrics.addr when set.

SIGINT or SIGTERM stops intake, cancels running tasks and waits for them to
record their outcome.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runWorker(logging.WithLogger(ctx, log), cfg, log)
	},
}

func runWorker(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	log.Infow("Starting worker", "worker", cfg.Worker.ID, "version", version, "libvirt", cfg.Libvirt.Socket)

	client, err := libvirt.ConnectWithContext(ctx, cfg.Libvirt.Socket, cfg.Libvirt.Timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warnf("Failed to close libvirt connection: %v", err)
		}
	}()

	v, err := client.Ping()
	if err != nil {
		return fmt.Errorf("libvirt connection test failed: %w", err)
	}
	log.Infof("Connected to libvirt %s", v)

	mgr := storage.NewManager(client.Libvirt(), cfg.Pools)
	if err := mgr.EnsurePools(ctx); err != nil {
		return err
	}

	var images catalog.Store = mgr
	if cfg.ImagesDir != "" {
		images = catalog.DirStore{Dir: cfg.ImagesDir}
		log.Infof("Serving images from %s", cfg.ImagesDir)
	}

	platform := libvirt.NewPlatform(client.Libvirt(), mgr, libvirt.Options{
		PollInterval:    cfg.Timeouts.Poll,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
		StateTimeout:    cfg.Timeouts.State,
		IPWaitTimeout:   cfg.Timeouts.IPWait,
		Converter:       storage.NewQemuImg(cfg.Convert.QemuImg, cfg.Convert.ScratchDir),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := tasks.NewMetrics(reg)

	gate := appliance.DefaultGate()
	gate.PollInterval = cfg.Boot.PollInterval
	gate.GraceDelay = cfg.Boot.GraceDelay
	gate.Timeout = cfg.Boot.Timeout
	gate.Observe = metrics.ObserveBoot

	svc := appliance.NewService(platform, catalog.New(images), appliance.WithGate(gate))

	results, err := tasks.NewBadgerStore(cfg.Worker.ResultStore, cfg.Worker.ResultTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := results.Close(); err != nil {
			log.Warnf("Failed to close result store: %v", err)
		}
	}()
	if cfg.Worker.ResultStore != "" {
		go results.RunGC(ctx, 10*time.Minute)
	}

	worker := tasks.NewWorker(cfg.Worker.ID, tasks.NewRegistry(svc), results,
		tasks.WithConcurrency(cfg.Worker.Concurrency),
		tasks.WithMetrics(metrics),
		tasks.WithLogger(log),
	)

	nc, err := tasks.Connect(cfg.NATS.URL, "vlab-avamar-worker-"+cfg.Worker.ID, log)
	if err != nil {
		return err
	}
	defer nc.Close()

	srv, err := tasks.Serve(nc, cfg.NATS.SubjectPrefix, cfg.NATS.Queue, worker, log)
	if err != nil {
		return err
	}
	log.Infow("Serving tasks",
		"submit", tasks.SubmitSubject(cfg.NATS.SubjectPrefix),
		"status", tasks.StatusSubject(cfg.NATS.SubjectPrefix, worker.ID()),
		"concurrency", cfg.Worker.Concurrency)

	var httpSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tasks.MetricsHandler(reg))
		httpSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Infof("Serving metrics on %s/metrics", cfg.Metrics.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down")

	if err := srv.Close(); err != nil {
		log.Warnf("Failed to unsubscribe: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := worker.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Worker shutdown: %v", err)
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Metrics server shutdown: %v", err)
		}
	}
	if err := nc.Drain(); err != nil {
		log.Warnf("Failed to drain NATS connection: %v", err)
	}

	log.Info("Worker stopped")
	return nil
}
