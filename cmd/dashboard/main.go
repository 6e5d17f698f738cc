package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"socialdash/internal/auth"
	"socialdash/internal/backend"
	"socialdash/internal/cache"
	"socialdash/internal/config"
	"socialdash/internal/dashboard"
	"socialdash/internal/monitor"
	"socialdash/internal/savedsearch"
	"socialdash/pkg/db"
	"socialdash/pkg/logger"
)

const connectAttempts = 20

func main() {
	cfg := config.LoadFromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheOpts := []cache.Option{
		cache.WithDefaultTTL(cfg.Cache.TTL),
		cache.WithLogger(log.With().Str("component", "cache").Logger()),
	}
	if cfg.Cache.Timers {
		cacheOpts = append(cacheOpts, cache.WithTimers())
	}
	reqCache := cache.New(cacheOpts...)
	go reqCache.Run(ctx, cfg.Cache.SweepInterval)

	client := backend.New(backend.Config{
		BaseURL:   cfg.Client.BaseURL,
		Timeout:   cfg.Client.Timeout,
		RPS:       cfg.Client.RPS,
		Burst:     int(cfg.Client.RPS) + 1,
		SearchTTL: cfg.Cache.SearchTTL,
	}, reqCache, log.With().Str("component", "backend").Logger(), nil)

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", string(cfg.Store.Driver)).Msg("saved search store not ready")
	}
	defer closeStore()

	authSvc, err := auth.NewService(cfg.Auth.Secret, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid auth config")
	}
	if !authSvc.Enabled() {
		log.Warn().Msg("APP_SECRET not set, admin routes are open")
	}

	saved := savedsearch.NewService(store)
	mon := monitor.New(client, saved, monitor.Config{
		Interval:   cfg.Health.Interval,
		Warm:       cfg.Health.WarmSaved,
		Concurrent: cfg.Health.WarmConcurrency,
		PerPage:    cfg.PostsPerPage,
	}, log.With().Str("component", "monitor").Logger())
	go mon.Run(ctx)

	srv := dashboard.New(client, saved, authSvc, log, cfg.PostsPerPage).WithMonitor(mon)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", httpSrv.Addr).
		Str("backend", cfg.Client.BaseURL).
		Dur("cache_ttl", cfg.Cache.TTL).
		Str("store", string(cfg.Store.Driver)).
		Msg("dashboard listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// openStore connects the configured saved search backend, retrying while the
// database comes up.
func openStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (savedsearch.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DB_URL is required for the postgres store")
		}
		for i := 0; i < connectAttempts; i++ {
			pool, err := db.Connect(ctx, cfg.DatabaseURL, 10)
			if err != nil {
				log.Warn().Err(err).Msgf("postgres connect retry %d/%d", i+1, connectAttempts)
				if !sleep(ctx, 5*time.Second) {
					return nil, nil, ctx.Err()
				}
				continue
			}
			st := savedsearch.NewPostgresStore(pool)
			if err := st.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
			return st, pool.Close, nil
		}
		return nil, nil, fmt.Errorf("postgres not ready after %d attempts", connectAttempts)

	case config.DriverScylla:
		if len(cfg.ScyllaHosts) == 0 {
			return nil, nil, fmt.Errorf("SCYLLA_HOSTS is required for the scylla store")
		}
		scfg := db.ScyllaConfig{
			Hosts:       cfg.ScyllaHosts,
			Port:        cfg.ScyllaPort,
			Keyspace:    cfg.ScyllaKeyspace,
			Consistency: cfg.ScyllaConsistency,
			Replication: cfg.ScyllaRF,
		}
		for i := 0; i < connectAttempts; i++ {
			session, err := db.ConnectScylla(scfg)
			if err != nil {
				log.Warn().Err(err).Msgf("scylla connect retry %d/%d", i+1, connectAttempts)
				if !sleep(ctx, 5*time.Second) {
					return nil, nil, ctx.Err()
				}
				continue
			}
			st := savedsearch.NewScyllaStore(session, cfg.ScyllaKeyspace)
			if err := st.EnsureSchema(ctx); err != nil {
				session.Close()
				return nil, nil, err
			}
			return st, session.Close, nil
		}
		return nil, nil, fmt.Errorf("scylla not ready after %d attempts", connectAttempts)

	default:
		return savedsearch.NewMemoryStore(), func() {}, nil
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
