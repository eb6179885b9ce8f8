package main

import (
	"context"
	"expvar"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"qms/admission-service/internal/config"
	"qms/admission-service/internal/httpapi"
	"qms/admission-service/internal/hub"
	"qms/admission-service/internal/journal"
	"qms/admission-service/internal/journal/postgres"
	"qms/admission-service/internal/journal/redisbus"
	"qms/admission-service/internal/session"
	"qms/admission-service/internal/telemetry"

	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "admission-service"

func main() {
	cfg := config.Load()
	telemetry.InitLogger(serviceName, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	memory := journal.NewMemorySink(cfg.JournalMemoryLimit)
	sinks := journal.Fanout{memory}
	var reader journal.Reader = memory

	var archive *postgres.Sink
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer pool.Close()
		archive = postgres.NewSink(pool)
		sinks = append(sinks, archive)
		reader = archive
	}

	h := hub.New()
	if cfg.RedisAddr != "" {
		client, err := redisbus.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect")
		}
		defer client.Close()
		bus := redisbus.NewSink(client, cfg.RedisChannel)
		events, err := bus.Subscribe(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("redis subscribe")
		}
		sinks = append(sinks, bus)
		go relay(ctx, events, h)
	} else {
		sinks = append(sinks, h)
	}

	metrics, err := telemetry.NewMetrics(telemetry.DefaultMeter())
	if err != nil {
		log.Fatal().Err(err).Msg("init metrics")
	}
	registry := session.NewRegistry(sinks, session.Options{
		Tables:          cfg.TableBuckets,
		MinutesPerTable: cfg.TableTurnMinutes,
		Departments:     cfg.Departments,
		IdleTTL:         cfg.SessionIdleTTL,
		OnClose:         memory.Drop,
		Metrics:         metrics,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		SessionPerMinute: cfg.SessionRateLimitPerMinute,
		SessionBurst:     cfg.SessionRateLimitBurst,
	})
	handler := httpapi.NewHandler(registry, reader, httpapi.Options{
		Departments: cfg.Departments,
		MaxPriority: cfg.MaxPriority,
		Limiter:     limiter,
	})

	router := handler.Routes()
	router.Handle("/metrics", expvar.Handler())
	router.Handle("/realtime/*", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, realtimeHandler(h, registry)))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(limiter.Middleware(router), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("admission-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	go func() {
		if cfg.SessionSweepInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.SessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if count := registry.Sweep(ctx); count > 0 {
					log.Info().Int("sessions", count).Msg("closed idle sessions")
				}
				limiter.Prune(now.Add(-10 * time.Minute))
			}
		}
	}()

	go func() {
		if archive == nil || cfg.JournalRetention <= 0 || cfg.JournalPruneInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.JournalPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				count, err := archive.Prune(pruneCtx, now.Add(-cfg.JournalRetention))
				cancel()
				if err != nil {
					log.Error().Err(err).Msg("prune journal")
					continue
				}
				if count > 0 {
					log.Info().Int64("events", count).Msg("pruned journal")
				}
			}
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
