package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/cayyus/engineerverse/internal/bsky"
	"github.com/cayyus/engineerverse/internal/engine"
	"github.com/cayyus/engineerverse/internal/metrics"
	"github.com/cayyus/engineerverse/internal/scheduler"
	"github.com/cayyus/engineerverse/internal/server"
	"github.com/cayyus/engineerverse/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the feed generator HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := server.NewLogger(cfg.Log.Env, os.Stdout)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	stack, err := buildCuration(cfg, db, logger.With("component", "batch_cache"), m, nil)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithSampler(stack.sampler),
		server.WithRegistry(reg),
		server.WithLogger(logger),
		server.WithFeed(cfg.Feed),
		server.WithLimits(cfg.Curation.DefaultLimit, cfg.Curation.MaxLimit),
	}

	var curator *engine.Curator
	client, err := bsky.NewClient(cfg.Bluesky)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: bluesky not configured (%v), feed disabled\n", err)
	} else {
		curator = newCurator(cfg, stack, client, logger.With("component", "curator"), m)
		opts = append(opts, server.WithCurator(curator))
		fmt.Fprintf(os.Stderr, "  bluesky: %s as %s\n", cfg.Bluesky.Host, cfg.Bluesky.Identifier)
	}

	sched := scheduler.New(logger)
	if err := sched.RegisterCacheJobs(stack.cache); err != nil {
		return fmt.Errorf("schedule cache jobs: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	opts = append(opts, server.WithScheduler(sched))

	srv := server.New(db, VersionString(), opts...)
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "engineerverse serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  feed: %s\n", srv.FeedURI())
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		fmt.Fprintf(os.Stderr, "  batch window: %s, %d terms\n", stack.cache.Duration(), stack.sampler.Len())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
