package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/agent"
	"github.com/margrave/gatehouse/internal/api"
	"github.com/margrave/gatehouse/internal/approval"
	"github.com/margrave/gatehouse/internal/capability"
	"github.com/margrave/gatehouse/internal/config"
	ctxmgr "github.com/margrave/gatehouse/internal/context"
	"github.com/margrave/gatehouse/internal/gate"
	"github.com/margrave/gatehouse/internal/notify"
	"github.com/margrave/gatehouse/internal/provider"
	"github.com/margrave/gatehouse/internal/store"
	"github.com/margrave/gatehouse/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Gatehouse...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/gatehouse.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	var providerInfos []api.ProviderInfo
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		providerInfos = append(providerInfos, api.ProviderInfo{
			ID: pc.ID, Type: pc.Type, Name: pc.Name, Models: pc.Models,
		})
	}

	// Capability registry: builtins plus plugin directory
	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		logger.Fatal("register builtin capabilities", zap.Error(err))
	}
	if cfg.CapabilitiesDir != "" {
		loaded, loadErr := capability.LoadFromDir(cfg.CapabilitiesDir)
		if loadErr != nil {
			logger.Fatal("load capability plugins", zap.Error(loadErr))
		}
		for _, c := range loaded {
			if regErr := registry.Register(c); regErr != nil {
				logger.Fatal("register capability plugin", zap.String("id", c.ID), zap.Error(regErr))
			}
		}
		logger.Info("Capability plugins loaded", zap.Int("count", len(loaded)))
	}

	// Redis store: sessions, approvals, capability versions
	var kv *store.Redis
	if cfg.Database.Redis.URL != "" {
		r, redisErr := store.NewRedis(cfg.Database.Redis.URL, logger)
		if redisErr != nil {
			logger.Warn("Redis unavailable, running with in-memory sessions", zap.Error(redisErr))
		} else {
			kv = r
		}
	}

	// PostgreSQL audit log for approval transitions
	var audit *store.AuditLog
	if cfg.Database.Postgres.DSN != "" {
		a, pgErr := store.NewAuditLog(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without audit log", zap.Error(pgErr))
		} else {
			if schemaErr := a.EnsureSchema(context.Background()); schemaErr != nil {
				logger.Fatal("audit schema", zap.Error(schemaErr))
			}
			audit = a
		}
	}

	// Approval gate with per-tool policies
	policies := make(map[string]approval.Policy, len(cfg.Approvals))
	for tool, p := range cfg.Approvals {
		policies[tool] = approval.Policy{
			RequireApproval:       p.RequireApproval,
			Timeout:               p.Timeout(),
			RequireReasonOnReject: p.RequireReasonOnReject,
		}
	}
	approvals := approval.NewGate(policies, logger)

	// Operator notification hub
	hub := notify.NewHub(logger)
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken != "" {
		hub.Add(notify.NewSlackNotifier(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel, logger))
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		dn, dErr := notify.NewDiscordNotifier(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID, logger)
		if dErr != nil {
			logger.Warn("Discord notifier unavailable", zap.Error(dErr))
		} else {
			hub.Add(dn)
		}
	}
	if cfg.Notify.Stream.Enabled && cfg.Database.Redis.URL != "" {
		sn, sErr := notify.NewStreamNotifier(cfg.Database.Redis.URL, logger)
		if sErr != nil {
			logger.Warn("Stream notifier unavailable", zap.Error(sErr))
		} else {
			hub.Add(sn)
		}
	}
	approvals.SetEmitter(hub)

	var versions api.VersionStore
	var sessions agent.SessionStore = agent.NewMemorySessionStore()
	if kv != nil {
		approvals.SetStore(kv)
		versions = kv
		sessions = kv
		if rErr := approvals.Rehydrate(context.Background()); rErr != nil {
			logger.Warn("rehydrating approvals failed", zap.Error(rErr))
		}
	}
	if audit != nil {
		approvals.SetAuditor(audit)
	}

	// Sweep expired approvals that nobody is awaiting
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if ids := approvals.SweepExpired(sweepCtx); len(ids) > 0 {
					logger.Info("expired approvals swept", zap.Int("count", len(ids)))
				}
			}
		}
	}()

	// Gating middleware and agent engine
	var versionSource gate.VersionSource
	if kv != nil {
		versionSource = kv
	}
	middleware := gate.New(registry, versionSource, logger)
	engine := agent.NewEngine(router, middleware, approvals, sessions, logger)
	engine.SetContextManager(ctxmgr.NewManager(ctxmgr.Config{
		MaxTokens:    cfg.Context.MaxTokens,
		ReserveRatio: cfg.Context.ReserveRatio,
	}, router, logger))

	// Domain tool backends. Stub backends serve until real integrations
	// are configured; the gate and approval paths are identical either way.
	gate.RegisterDomainTools(engine.Tools(), gate.Backends{
		SQL:    stubSQL{},
		Issues: stubIssues{},
		Sheets: stubSheets{},
	})

	coordinator := workflow.NewCoordinator(engine, cfg.Workflow.PoolSize, logger)

	// Build HTTP handler
	var auditReader api.AuditReader
	if audit != nil {
		auditReader = audit
	}
	handler := api.NewHandler(engine, registry, versions, approvals, coordinator, hub, auditReader, router, providerInfos, logger)

	// Start server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Gatehouse listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Gatehouse...")
	stopSweep()
	srv.Shutdown(context.Background())
	if kv != nil {
		kv.Close()
	}
	if audit != nil {
		audit.Close()
	}
}
