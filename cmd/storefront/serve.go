package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fairyhunter13/agent-storefront/internal/auth"
	"github.com/fairyhunter13/agent-storefront/internal/enrich"
	"github.com/fairyhunter13/agent-storefront/internal/events"
	httpapi "github.com/fairyhunter13/agent-storefront/internal/http"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
	"github.com/fairyhunter13/agent-storefront/internal/queue"
	"github.com/fairyhunter13/agent-storefront/internal/scheduler"
	"github.com/fairyhunter13/agent-storefront/internal/store"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the feed and dashboard HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "seed",
				Usage: "Catalog file loaded at startup",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer obs.Logger.Sync()
	obs.Logger.Info("service_starting", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if path := c.String("seed"); path != "" {
		cat, err := store.ReadCatalog(path)
		if err != nil {
			return err
		}
		if err := store.Seed(ctx, st, cat); err != nil {
			return err
		}
		obs.Logger.Info("catalog_seeded", "store_id", cat.Storefront.ID, "products", len(cat.Products))
	}

	sinks := events.Multi{st}
	var redisSink *events.RedisSink
	if cfg.RedisAddr != "" {
		redisSink, err = events.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisStream)
		if err != nil {
			obs.Logger.Warn("redis_unavailable", "addr", cfg.RedisAddr, "error", err)
		} else {
			sinks = append(sinks, redisSink)
		}
	}
	visits := events.NewAsync(sinks, cfg.EventBuffer)

	q := queue.New(128, cfg.FlushQuiet)
	mgr := queue.NewManager(cfg, q, st)
	mgr.Start(ctx)

	sched := scheduler.New(ctx, st, cfg.VisitRetentionDays)
	if cfg.VisitRetentionDays > 0 && cfg.PruneCron != "" {
		if err := sched.Register(cfg.PruneCron); err != nil {
			return err
		}
	}
	sched.Start()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if !verifier.Enabled() {
		obs.Logger.Warn("dashboard_auth_disabled")
	}
	app := httpapi.NewApp(cfg, st, mgr, visits, verifier, enrich.New(cfg.EnrichURL, cfg.EnrichTimeout))
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		obs.Logger.Info("shutdown_signal", "signal", s.String())
	case err := <-errc:
		obs.Logger.Error("http_server_error", "error", err)
	}

	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "worker_count", mgr.WorkerCount())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	mgr.Stop()
	sched.Stop()
	if err := visits.Close(ctxSrv); err != nil {
		obs.Logger.Warn("visit_flush_incomplete", "error", err)
	}
	if redisSink != nil {
		_ = redisSink.Close()
	}
	obs.Logger.Info("service_stopped")
	return nil
}
