package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nerrad567/finboard-core/internal/acquisition"
	"github.com/nerrad567/finboard-core/internal/api"
	"github.com/nerrad567/finboard-core/internal/audit"
	"github.com/nerrad567/finboard-core/internal/fanout"
	"github.com/nerrad567/finboard-core/internal/infrastructure/config"
	"github.com/nerrad567/finboard-core/internal/infrastructure/database"
	"github.com/nerrad567/finboard-core/internal/infrastructure/logging"
	"github.com/nerrad567/finboard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/finboard-core/internal/widget"
	"github.com/nerrad567/finboard-core/migrations"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server (default)",
		Long:  "Load the dashboard, start acquisition for every widget and serve the HTTP API, WebSocket hub and optional MQTT state fan-out until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return run(cmd.Context(), cfg, path)
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, configPath string) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting FinBoard Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	if configPath != "" {
		log.Info("configuration loaded", "path", configPath)
	} else {
		log.Info("no config file found, using defaults")
	}

	// Open database
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	// Widget store
	store := widget.NewStore(widget.NewSQLiteRepository(db.DB))
	store.SetLogger(log)
	store.SetDefaultRefreshInterval(cfg.Acquisition.DefaultRefreshInterval)
	if loadErr := store.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading dashboard: %w", loadErr)
	}
	log.Info("dashboard loaded",
		"widgets", store.Count(),
		"template", store.CurrentTemplate(),
	)

	// Change history
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo)
	recorder.SetLogger(log)
	store.Subscribe(recorder.HandleEvent)
	auditCtx, stopAudit := context.WithCancel(ctx)
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		recorder.Run(auditCtx)
	}()
	defer func() {
		stopAudit()
		<-auditDone
	}()

	// Acquisition engine
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engine := acquisition.New(store,
		acquisition.WithFetcher(acquisition.NewHTTPFetcher(
			cfg.GetHTTPTimeout(),
			cfg.Acquisition.MaxResponseBytes,
			cfg.Acquisition.UserAgent,
		)),
		acquisition.WithDialer(acquisition.NewWSDialer(cfg.GetDialTimeout())),
		acquisition.WithPolicy(policyFromConfig(cfg.Acquisition)),
		acquisition.WithLogger(log.With("component", "acquisition")),
		acquisition.WithRegisterer(registry),
	)
	defer func() {
		log.Info("stopping acquisition")
		engine.Close()
	}()
	store.Subscribe(engine.HandleEvent)

	// MQTT state fan-out (optional)
	var mqttHealth api.HealthChecker
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttHealth = mqttClient

		publisher := fanout.NewPublisher(mqttClient, mqttClient.Topics(), mqttClient.QoS())
		publisher.SetLogger(log.With("component", "fanout"))
		store.Subscribe(publisher.HandleEvent)
		pubCtx, stopPublisher := context.WithCancel(ctx)
		pubDone := make(chan struct{})
		go func() {
			defer close(pubDone)
			publisher.Run(pubCtx)
		}()
		defer func() {
			stopPublisher()
			<-pubDone
		}()

		if cfg.MQTT.Commands {
			commands := fanout.NewCommands(mqttClient, mqttClient.Topics(), mqttClient.QoS(), engine)
			commands.SetLogger(log.With("component", "mqtt-commands"))
			if err := commands.Start(); err != nil {
				return err
			}
			cmdCtx, stopCommands := context.WithCancel(ctx)
			cmdDone := make(chan struct{})
			go func() {
				defer close(cmdDone)
				commands.Run(cmdCtx)
			}()
			defer func() {
				stopCommands()
				<-cmdDone
				if err := commands.Stop(); err != nil {
					log.Warn("unsubscribing refresh commands", "error", err)
				}
			}()
			log.Info("MQTT refresh commands enabled", "topic", mqttClient.Topics().AllWidgetRefreshes())
		}
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API and WebSocket hub
	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Store:    store,
		Engine:   engine,
		DB:       db,
		MQTT:     mqttHealth,
		Audit:    auditRepo,
		Gatherer: registry,
		Registry: registry,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	store.Subscribe(srv.Hub().HandleEvent)

	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Acquisition for the loaded dashboard, or the default template on
	// first start. Template widgets start through the store's events.
	if store.Count() == 0 && cfg.Dashboard.DefaultTemplate != "" {
		if tmplErr := store.ApplyTemplate(ctx, cfg.Dashboard.DefaultTemplate); tmplErr != nil {
			return fmt.Errorf("applying default template: %w", tmplErr)
		}
		log.Info("default template applied", "template", cfg.Dashboard.DefaultTemplate)
	} else {
		startSessions(ctx, engine, store.Configs(), log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. MQTT publisher, then client (if enabled)
	// 3. Acquisition
	// 4. Audit recorder (final flush)
	// 5. Database

	log.Info("FinBoard Core stopped")
	return nil
}

// openDatabase opens the SQLite database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := openDatabaseOnly(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// openDatabaseOnly opens the database without touching the schema.
func openDatabaseOnly(cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		Migrations:  migrations.FS,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// connectMQTT connects to the broker and logs connection changes.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic_prefix", client.Topics().Prefix,
	)

	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	return client, nil
}

// startSessions starts acquisition for every widget. A widget that fails
// to start is logged and skipped.
func startSessions(ctx context.Context, engine *acquisition.Engine, cfgs []widget.Config, log *logging.Logger) {
	for _, c := range cfgs {
		if err := engine.Start(ctx, c.ID); err != nil {
			log.Warn("starting acquisition failed", "id", c.ID, "error", err)
		}
	}
	log.Info("acquisition started", "sessions", len(engine.Sessions()))
}

// policyFromConfig converts acquisition settings to an engine policy.
func policyFromConfig(cfg config.AcquisitionConfig) acquisition.Policy {
	p := acquisition.DefaultPolicy()
	if cfg.PlaceholderHosts != nil {
		p.PlaceholderHosts = cfg.PlaceholderHosts
	}
	if cfg.StreamFailure.Policy != "" {
		p.StreamFailure = acquisition.StreamFailureMode(cfg.StreamFailure.Policy)
	}
	if cfg.StreamFailure.MaxAttempts > 0 {
		p.MaxAttempts = cfg.StreamFailure.MaxAttempts
	}
	if cfg.StreamFailure.InitialDelay > 0 {
		p.InitialDelay = time.Duration(cfg.StreamFailure.InitialDelay) * time.Second
	}
	if cfg.StreamFailure.MaxDelay > 0 {
		p.MaxDelay = time.Duration(cfg.StreamFailure.MaxDelay) * time.Second
	}
	if cfg.DefaultRefreshInterval > 0 {
		p.DefaultInterval = time.Duration(cfg.DefaultRefreshInterval) * time.Second
	}
	return p
}
