// Command catzillad is the embeddable server core's standalone daemon
// entrypoint: flag/config loading, logging setup, and an ordered
// startup/shutdown sequence grounded on ais/daemon.go's rungroup shape -
// bring every shared subsystem up in dependency order, and tear them down
// in reverse on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catzilla-go/catzilla/cache"
	"github.com/catzilla-go/catzilla/cmn"
	"github.com/catzilla-go/catzilla/fs"
	"github.com/catzilla-go/catzilla/hk"
	"github.com/catzilla-go/catzilla/memsys"
	"github.com/catzilla-go/catzilla/server"
	"github.com/catzilla-go/catzilla/stats"
	"github.com/catzilla-go/catzilla/tasks"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON configuration file")
	staticRoot := flag.String("static-root", "", "directory to serve at the root mount (optional)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus /metrics on (optional)")
	flag.Parse()

	cfg, err := cmn.LoadConfig(*configPath)
	if err != nil {
		cmn.Fatalf("loading config: %v", err)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	cmn.SetLogLevel(cfg.LogLevel())

	mm := memsys.New()
	hk.Start()

	reg := stats.NewRegistry()

	caches := map[string]*cache.Cache{
		"default": cache.New(mm, cfg.Cache.SizeMB<<20, cache.Config{
			EntryTTL: time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
			HK:       hk.Default,
			Stats:    reg,
		}),
	}

	engine := tasks.NewEngine(tasks.Config{
		InitialWorkers:    cfg.Tasks.InitialWorkers,
		MinWorkers:        cfg.Tasks.MinWorkers,
		MaxWorkers:        cfg.Tasks.MaxWorkers,
		QueueSize:         int64(cfg.Tasks.QueueSize),
		EnableAutoScaling: cfg.Tasks.EnableAutoScaling,
		Stats:             reg,
	})
	engine.Start()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				cmn.Errorf("metrics listener exited: %v", err)
			}
		}()
		cmn.Infof("metrics listening on %s", *metricsAddr)
	}

	srv := server.New(cfg, server.Options{}, mm, caches, engine)

	if *staticRoot != "" {
		policy := fs.NewPolicy(
			cfg.Static.AllowedExtensions,
			cfg.Static.BlockedExtensions,
			cfg.Static.MaxFileSize,
			false,
			cfg.Static.EnableDirectoryListing,
			cfg.Static.EnableHiddenFiles,
		)
		mount, err := fs.NewMount("/", *staticRoot, policy, "default")
		if err != nil {
			cmn.Fatalf("configuring static root: %v", err)
		}
		srv.Router.AddMount(mount)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	cmn.Infof("catzillad listening on %s", srv.Addr())

	select {
	case err := <-serveErr:
		if err != nil {
			cmn.Errorf("server exited: %v", err)
		}
	case s := <-sig:
		cmn.Infof("received %v, shutting down", s)
		timeout := time.Duration(cfg.Log.ShutdownTimeoutS) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			cmn.Errorf("shutdown: %v", err)
		}
		hk.Stop()
	}
}
