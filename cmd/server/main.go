package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"asteriskgui/internal/ami"
	"asteriskgui/internal/auth"
	"asteriskgui/internal/config"
	"asteriskgui/internal/database"
	"asteriskgui/internal/handlers"
	"asteriskgui/internal/logging"
	"asteriskgui/internal/metrics"
	"asteriskgui/internal/middleware"
	"asteriskgui/internal/models"
	"asteriskgui/internal/relay"
	"asteriskgui/internal/services"
	"asteriskgui/internal/telemetry"
)

const serviceName = "Asterisk GUI Backend"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	// Initialize database
	db, err := database.New(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	// Auth
	userService := auth.NewUserService(db, auth.UserOptions{
		BcryptCost:       cfg.Auth.BcryptCost,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	})
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiresIn)
	sessions := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionMaxAge, false)
	authMiddleware := middleware.NewAuthMiddleware(tokens, sessions, userService)

	created, err := userService.EnsureDefaultAdmin(cfg.DefaultAdmin, cfg.DefaultPassword, cfg.DefaultEmail)
	if err != nil {
		logger.Warn("Failed to create default admin", zap.Error(err))
	} else if created {
		logger.Warn("Created default admin user, change its password",
			zap.String("username", cfg.DefaultAdmin))
	}

	// Asterisk manager connection and the browser relay
	m := metrics.New()
	client := ami.New(ami.Config{
		Host:                 cfg.Asterisk.Host,
		Port:                 cfg.Asterisk.Port,
		Username:             cfg.Asterisk.Username,
		Password:             cfg.Asterisk.Password,
		ReconnectDelay:       cfg.Asterisk.ReconnectDelay,
		MaxReconnectAttempts: cfg.Asterisk.MaxReconnectAttempts,
		CommandTimeout:       cfg.Asterisk.CommandTimeout,
		DialTimeout:          cfg.Asterisk.DialTimeout,
	}, ami.WithLogger(logger.Named("ami")))
	defer client.Close()

	hub := relay.NewHub(authMiddleware.RelayAuth, relay.WithLogger(logger.Named("relay")))
	go hub.Run(ctx)

	client.Subscribe(ami.TopicAll, hub.HandleEvent)
	client.Subscribe(ami.TopicAll, m.ObserveEvent)
	client.OnNotification(hub.HandleNotification)
	client.OnNotification(m.ObserveNotification)
	m.WatchClients(func() int { return hub.Stats().ConnectedClients })
	m.WatchState(client.State)

	commander := m.Commander(telemetry.Commander(client, otel.GetTracerProvider()))
	cli := ami.NewCLI(commander, ami.WithNotifier(client), ami.WithCLILogger(logger.Named("ami.cli")))

	// PBX services
	auditService := services.NewAuditService(db, logger)
	snapshots := services.NewSnapshotService(cfg.Paths.GeneratedDir, cfg.Paths.SnapshotsDir, logger)
	provisioner := services.NewProvisioner(services.ProvisionerDeps{
		DB:        db,
		Generator: services.NewConfigGenerator(cfg.Paths.GeneratedDir),
		Snapshots: snapshots,
		Reloader:  cli,
		Audit:     auditService,
		Events:    hub,
		Logger:    logger,
	})
	sipService := services.NewSIPService(db, provisioner)
	queueService := services.NewQueueService(db, provisioner)
	trunkService := services.NewTrunkService(db, provisioner)
	rawService := services.NewRawConfigService(cfg.Paths.GeneratedDir, provisioner)
	systemService := services.NewSystemService(db, services.SystemPaths{
		GeneratedDir: cfg.Paths.GeneratedDir,
		SnapshotsDir: cfg.Paths.SnapshotsDir,
		BackupsDir:   cfg.Paths.BackupsDir,
	}, defaultSettings(cfg), provisioner, logger)

	if err := provisioner.RegenerateAll(ctx); err != nil {
		logger.Warn("Initial config generation failed", zap.Error(err))
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Asterisk.DialTimeout+cfg.Asterisk.CommandTimeout)
	if err := client.Connect(connectCtx); err != nil {
		logger.Warn("Asterisk manager unavailable at startup",
			zap.String("address", client.Address()), zap.Error(err))
	}
	cancel()

	httpLog := logger.Named("http")
	router := handlers.NewRouter(handlers.RouterDeps{
		Logger:         httpLog,
		AuthMiddleware: authMiddleware,
		LoginLimiter:   middleware.NewIPRateLimiter(cfg.Auth.LoginRate, cfg.Auth.LoginBurst),
		Metrics:        m,
		Relay:          hub,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,

		Health:   handlers.NewHealthHandler(serviceName, client.Status, hub.Stats),
		Auth:     handlers.NewAuthHandler(userService, tokens, sessions, auditService, httpLog),
		Users:    handlers.NewUserHandler(userService, auditService, httpLog),
		SIP:      handlers.NewSIPHandler(sipService, httpLog),
		Queues:   handlers.NewQueueHandler(queueService, httpLog),
		Trunks:   handlers.NewTrunkHandler(trunkService, httpLog),
		Config:   handlers.NewConfigHandler(snapshots, provisioner, rawService, httpLog),
		Audit:    handlers.NewAuditHandler(auditService, httpLog),
		Asterisk: handlers.NewAsteriskHandler(client, cli, auditService, httpLog),
		System:   handlers.NewSystemHandler(systemService, services.NewInterfaceService(), services.NewHostService(), httpLog),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      telemetry.HTTP(router),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Asterisk GUI", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	sctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(sctx)
}

func defaultSettings(cfg *config.Config) models.SystemSettings {
	return models.SystemSettings{
		Asterisk: map[string]any{
			"host":                 cfg.Asterisk.Host,
			"amiPort":              cfg.Asterisk.Port,
			"amiUsername":          cfg.Asterisk.Username,
			"reconnectDelay":       cfg.Asterisk.ReconnectDelay.String(),
			"maxReconnectAttempts": cfg.Asterisk.MaxReconnectAttempts,
		},
		Security: map[string]any{
			"jwtExpiresIn":     cfg.Auth.JWTExpiresIn.String(),
			"bcryptRounds":     cfg.Auth.BcryptCost,
			"maxLoginAttempts": cfg.Auth.MaxLoginAttempts,
			"lockoutDuration":  cfg.Auth.LockoutDuration.String(),
		},
		Paths: map[string]any{
			"asteriskConfig":  cfg.Paths.AsteriskDir,
			"generatedConfig": cfg.Paths.GeneratedDir,
			"snapshots":       cfg.Paths.SnapshotsDir,
			"backups":         cfg.Paths.BackupsDir,
		},
	}
}
