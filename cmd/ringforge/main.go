// Command ringforge boots the coordination hub: the WebSocket connection
// gateway and the admin control-plane HTTP API sharing one set of
// in-process services (fleet bus, presence index, shared memory, direct
// messaging, task router, event log) backed by Postgres and Redis.
//
// Boot order: load config, init logger, open the database and run
// migrations, connect the cache, wire every service, start background
// sweepers, start both HTTP servers, and wait for a shutdown signal to
// drain connections gracefully.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamspace-dev/ringforge/internal/agent"
	"github.com/streamspace-dev/ringforge/internal/apikey"
	"github.com/streamspace-dev/ringforge/internal/cache"
	"github.com/streamspace-dev/ringforge/internal/config"
	"github.com/streamspace-dev/ringforge/internal/controlplane"
	"github.com/streamspace-dev/ringforge/internal/directmsg"
	"github.com/streamspace-dev/ringforge/internal/eventlog"
	"github.com/streamspace-dev/ringforge/internal/events"
	"github.com/streamspace-dev/ringforge/internal/fleet"
	"github.com/streamspace-dev/ringforge/internal/gateway"
	"github.com/streamspace-dev/ringforge/internal/idempotency"
	"github.com/streamspace-dev/ringforge/internal/logger"
	"github.com/streamspace-dev/ringforge/internal/memory"
	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/presence"
	"github.com/streamspace-dev/ringforge/internal/quota"
	"github.com/streamspace-dev/ringforge/internal/ratelimit"
	"github.com/streamspace-dev/ringforge/internal/session"
	"github.com/streamspace-dev/ringforge/internal/storage"
	"github.com/streamspace-dev/ringforge/internal/storage/postgres"
	"github.com/streamspace-dev/ringforge/internal/task"
	"github.com/streamspace-dev/ringforge/internal/tenant"
	"github.com/streamspace-dev/ringforge/internal/wire"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	store, err := postgres.Open(postgres.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.NewCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Enabled:  cfg.RedisEnabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, quota/rate-limit/idempotency run degraded")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	relay, err := events.NewRelay(events.Config{
		URL:    cfg.NATSURL,
		NodeID: nodeID(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("nats relay unavailable, running single-instance")
	}
	defer relay.Close()

	// Cross-cutting gates, constructed early since the memory service's
	// TTL-expiry notify callback below needs the quota gate in scope.
	quotaGate := quota.NewGate(redisCache)
	rateLimiter := ratelimit.NewLimiter(redisCache, nil)
	idemStore := idempotency.NewStore(redisCache, cfg.IdempotencyTTL)
	blobSigner := storage.NewHMACBlobSigner([]byte(cfg.BlobSignerSecret), cfg.BlobSignerBaseURL, cfg.BlobSignerTTL)

	// Core services (C2-C5, X1).
	bus := fleet.NewBus(relay)
	presenceIdx := presence.NewIndex()
	memSvc := memory.NewService(nil) // notify callback wired below, after bus exists
	memSubs := memory.NewSubscriptions()
	dmQueues := directmsg.NewQueues()
	dmRouter := directmsg.NewRouter(bus, dmQueues)
	taskRouter := task.NewRouter()
	taskStats := task.NewMemoryStats()
	taskRouter.SetStats(taskStats)
	eventLog := eventlog.NewLog(store)

	// memory.NewService takes its fan-out callback at construction; the
	// callback needs `bus` and `eventLog`, so it is rebuilt here rather than
	// threaded through a setter. The only caller left that drives this
	// callback is SweepExpired (the live Set/Delete path logs-then-publishes
	// itself from the gateway, see gateway.PublishMemoryChange), so this
	// always logs a memory_delete/expired record before fanning out, keeping
	// the same log-before-notify ordering for TTL-driven deletes.
	memSvc = memory.NewService(func(fleetID string, c memory.Change) {
		if _, err := eventLog.Append(context.Background(), fleetID, "system", eventlog.KindMemoryDelete, c); err != nil {
			log.Warn().Err(err).Str("fleet", fleetID).Str("key", c.Key).Msg("failed to log expired memory delete")
			return
		}
		tenantID, ok := bus.TenantOf(fleetID)
		if !ok {
			return
		}
		if c.Entry != nil {
			_ = quotaGate.Decrement(context.Background(), tenantID, quota.CounterMemoryEntries, 1)
			_ = quotaGate.Decrement(context.Background(), tenantID, quota.CounterStorageBytes, int64(len(c.Entry.Value)))
		}
		gateway.PublishMemoryChange(bus, memSubs, tenantID, fleetID, c)
	})

	// Entity services.
	tenantSvc := tenant.NewService(store)
	fleetSvc := fleet.NewService(store)
	agentSvc := agent.NewService(store)
	sessionSvc := session.NewService(store)
	challenges := session.NewChallengeIssuer([]byte(cfg.ChallengeSecret))

	// Background sweepers.
	presenceSweeper, err := presence.NewSweeper(presenceIdx, presence.SweepSeconds(int(cfg.PresenceSweepInterval.Seconds())), func(fleetID, agentID string) {
		onStalePresence(bus, eventLog, quotaGate, fleetID, agentID)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule presence sweeper")
	}
	memSweeper, err := memory.NewSweeper(memSvc, int(cfg.MemoryTTLSweepInterval.Seconds()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule memory TTL sweeper")
	}
	retentionSweeper, err := eventlog.NewSweeper(eventLog, store, config.RetentionForPlan, int(cfg.RetentionSweepInterval.Seconds()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule retention sweeper")
	}
	taskSweeper, err := task.NewSweeper(taskRouter, bus.ActiveFleetIDs, func(fleetID string) []task.Candidate {
		return candidatesFor(presenceIdx, taskRouter, fleetID)
	}, taskStats, int(cfg.TaskClaimGrace.Seconds()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule task claim-timeout sweeper")
	}
	presenceSweeper.Start()
	memSweeper.Start()
	retentionSweeper.Start()
	taskSweeper.Start()
	defer presenceSweeper.Stop()
	defer memSweeper.Stop()
	defer retentionSweeper.Stop()
	defer taskSweeper.Stop()

	// Connection gateway (C1).
	gw := gateway.NewServer(gateway.Deps{
		Store:        store,
		EventLog:     eventLog,
		Bus:          bus,
		Presence:     presenceIdx,
		Memory:       memSvc,
		MemSubs:      memSubs,
		DirectQueues: dmQueues,
		DirectRouter: dmRouter,
		Tasks:        taskRouter,
		Sessions:     sessionSvc,
		Agents:       agentSvc,
		Fleets:       fleetSvc,
		Challenges:   challenges,
		Quota:        quotaGate,
		RateLimit:    rateLimiter,
		Idempotency:  idemStore,
		Blobs:        blobSigner,
		Config:       cfg,
	})

	gatewayMux := http.NewServeMux()
	gatewayMux.Handle("/", gw)
	gatewayServer := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           gatewayMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Control plane.
	router := controlplane.NewRouter(controlplane.Deps{
		Store:                store,
		Audit:                store,
		Tenants:              tenantSvc,
		Fleets:               fleetSvc,
		Agents:               agentSvc,
		Quota:                quotaGate,
		Cache:                redisCache,
		DBPing:               func(ctx context.Context) error { return store.DB().PingContext(ctx) },
		AuditBodies:          false,
		AdminRateLimitPerSec: cfg.AdminRateLimitPerSec,
		AdminRateLimitBurst:  cfg.AdminRateLimitBurst,
	})
	controlPlaneServer := &http.Server{
		Addr:              cfg.ControlPlaneAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.BootstrapAdminKey != "" {
		bootstrapAdmin(store, cfg.BootstrapAdminKey, log)
	}

	go func() {
		log.Info().Str("addr", cfg.GatewayAddr).Msg("connection gateway listening")
		if err := gatewayServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.ControlPlaneAddr).Msg("control plane listening")
		if err := controlPlaneServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("control plane server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = gatewayServer.Shutdown(ctx)
	_ = controlPlaneServer.Shutdown(ctx)
	log.Info().Msg("shutdown complete")
}

// onStalePresence is the backstop the heartbeat-timeout close path already
// handles in the common case: the sweeper only fires for an
// entry whose session never made it through a graceful or timeout close
// (e.g. a half-open TCP connection the OS hasn't reaped yet).
func onStalePresence(bus *fleet.Bus, eventLog *eventlog.Log, quotaGate *quota.Gate, fleetID, agentID string) {
	tenantID, ok := bus.TenantOf(fleetID)
	if !ok {
		return
	}
	left := wire.PresenceEntry{AgentID: agentID}
	_, _ = eventLog.Append(context.Background(), fleetID, agentID, eventlog.KindLeave, left)
	env, _ := wire.NewEvent(wire.TypePresence, wire.ActionPresenceLeft, left)
	raw, _ := wire.Encode(env)
	_ = bus.Publish(tenantID, fleetID, raw, fleet.FleetScope())
	_ = quotaGate.Decrement(context.Background(), tenantID, quota.CounterConcurrentAgents, 1)
}

// candidatesFor reads a consistent snapshot of a fleet's online agents for
// the task claim-timeout sweeper, mirroring the gateway's own
// buildCandidates used on the submit/reassess path.
func candidatesFor(idx *presence.Index, router *task.Router, fleetID string) []task.Candidate {
	entries := idx.Roster(fleetID)
	loads := router.LoadSnapshot()
	out := make([]task.Candidate, 0, len(entries))
	for _, e := range entries {
		cand := task.Candidate{
			AgentID:      e.AgentID,
			Capabilities: e.Capabilities,
			State:        e.State,
		}
		if l, ok := loads[e.AgentID]; ok {
			cand.Load = l.Load
			cand.LastAssigned = l.LastAssigned
		}
		out = append(out, cand)
	}
	return out
}

// bootstrapAdmin mints BOOTSTRAP_ADMIN_KEY as an admin API key on a
// dedicated bootstrap tenant, so an operator always has a way into the
// control plane without a manual SQL insert. Idempotent: if a key with this
// prefix is already registered, it is left alone.
func bootstrapAdmin(store *postgres.Store, plaintext string, log *zerolog.Logger) {
	if err := apikey.ValidateFormat(plaintext); err != nil {
		log.Fatal().Err(err).Msg("BOOTSTRAP_ADMIN_KEY is not a valid api key (want 64 hex chars)")
	}
	ctx := context.Background()
	prefix := apikey.Prefix(plaintext)
	if existing, err := store.GetAPIKeyByPrefix(ctx, prefix); err == nil && existing != nil {
		log.Info().Msg("bootstrap admin key already registered, skipping")
		return
	}

	const bootstrapTenantID = "00000000-0000-0000-0000-000000000000"
	if _, err := store.GetTenant(ctx, bootstrapTenantID); err != nil {
		t := &ports.Tenant{
			ID:        bootstrapTenantID,
			Plan:      "enterprise",
			Email:     "bootstrap@ringforge.invalid",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := store.CreateTenant(ctx, t); err != nil {
			log.Fatal().Err(err).Msg("failed to create bootstrap tenant")
		}
	}

	hash, err := apikey.Hash(plaintext)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash bootstrap admin key")
	}
	rec := &ports.APIKey{
		ID:        uuid.NewString(),
		TenantID:  bootstrapTenantID,
		Type:      apikey.TypeAdmin,
		Prefix:    prefix,
		Hash:      hash,
		CreatedAt: time.Now(),
	}
	if err := store.CreateAPIKey(ctx, rec); err != nil {
		log.Fatal().Err(err).Msg("failed to create bootstrap admin key")
	}
	log.Info().Msg("bootstrap admin key registered")
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "ringforge-node"
	}
	return host
}

var _ ports.AuditSink = (*postgres.Store)(nil)
