// main wires the process: configuration, storage backends, the trigger
// engine and access policy services, background workers, and the HTTP
// server lifecycle. Business logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"heirloom/internal/access"
	accesshandler "heirloom/internal/access/handler"
	accessmetrics "heirloom/internal/access/metrics"
	"heirloom/internal/audit"
	audithandler "heirloom/internal/audit/handler"
	auditkafka "heirloom/internal/audit/kafka"
	auditworker "heirloom/internal/audit/worker"
	evidencemem "heirloom/internal/evidence/memory"
	httpapi "heirloom/internal/http"
	"heirloom/internal/jwttoken"
	"heirloom/internal/notify"
	"heirloom/internal/platform/config"
	"heirloom/internal/platform/httpserver"
	"heirloom/internal/platform/logger"
	"heirloom/internal/platform/postgres"
	platformredis "heirloom/internal/platform/redis"
	"heirloom/internal/scheduler"
	schedulerhandler "heirloom/internal/scheduler/handler"
	schedulermetrics "heirloom/internal/scheduler/metrics"
	"heirloom/internal/trigger"
	"heirloom/internal/trigger/engine"
	enginehandler "heirloom/internal/trigger/engine/handler"
	enginemetrics "heirloom/internal/trigger/engine/metrics"
	triggerhandler "heirloom/internal/trigger/handler"
	"heirloom/internal/verification"
	verificationhandler "heirloom/internal/verification/handler"
)

const auditBufferSize = 1024

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage backends. Empty DSN/URL falls back to in-memory.
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var auditStore audit.Store
	var triggerStore trigger.Store
	if db != nil {
		auditStore = audit.NewPostgresStore(db)
		triggerStore = trigger.NewPostgresStore(db)
	} else {
		auditStore = audit.NewInMemoryStore()
		triggerStore = trigger.NewInMemoryStore()
	}

	// Audit pipeline: services enqueue, the worker appends to the chain
	// and optionally forwards to Kafka.
	forwarder, err := auditkafka.New(cfg.Kafka)
	if err != nil {
		log.Error("kafka unavailable", "error", err)
		os.Exit(1)
	}
	inbox := make(chan audit.Event, auditBufferSize)
	workerOpts := []auditworker.Option{auditworker.WithLogger(log)}
	if forwarder != nil {
		workerOpts = append(workerOpts, auditworker.WithForwarder(forwarder))
		defer forwarder.Close()
	}
	worker := auditworker.New(auditStore, inbox, workerOpts...)
	emitter := audit.NewAsyncPublisher(inbox)
	auditReader := audit.NewPublisher(auditStore)

	// Evidence sources. In-memory snapshots until external feeds land.
	snapshots := evidencemem.NewSnapshots()

	triggerService := trigger.NewService(triggerStore,
		trigger.WithLogger(log),
		trigger.WithAudit(emitter),
	)

	var cache access.Cache
	if redisClient != nil {
		cache = access.NewRedisCache(redisClient, config.PermissionCacheTTL, log)
	} else {
		cache = access.NewMemoryCache(config.PermissionCacheTTL)
	}
	accessService := access.NewService(access.NewInMemoryStore(),
		access.WithCache(cache),
		access.WithDeadman(snapshots),
		access.WithAudit(emitter),
		access.WithMetrics(accessmetrics.New()),
		access.WithLogger(log),
	)

	dispatcher := notify.NewInMemoryDispatcher()
	verificationStore := verification.NewInMemoryStore()
	issuer := verification.NewIssuer(verificationStore, log, verification.WithDispatcher(dispatcher))

	evaluationEngine := engine.New(triggerService,
		engine.NewEvaluators(snapshots, snapshots, snapshots, snapshots, snapshots, snapshots),
		snapshots,
		engine.WithGranter(access.NewEngineGranter(accessService)),
		engine.WithDispatcher(dispatcher),
		engine.WithApprovals(issuer),
		engine.WithAudit(emitter),
		engine.WithMetrics(enginemetrics.New()),
		engine.WithLogger(log),
	)

	evaluationScheduler := scheduler.New(scheduler.NewInMemoryStore(), evaluationEngine,
		scheduler.WithResolution(cfg.Scheduler.Resolution),
		scheduler.WithAudit(emitter),
		scheduler.WithMetrics(schedulermetrics.New()),
		scheduler.WithLogger(log),
	)

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	router := httpapi.New(httpapi.Deps{
		Triggers:       triggerhandler.New(triggerService, log),
		Evaluations:    enginehandler.New(evaluationEngine, log),
		Access:         accesshandler.New(accessService, log),
		Schedules:      schedulerhandler.New(evaluationScheduler, log),
		Verifications:  verificationhandler.New(verificationStore, log),
		Audit:          audithandler.New(auditReader, log),
		TokenValidator: jwtService,
		Logger:         log,
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := worker.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		err := evaluationScheduler.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
