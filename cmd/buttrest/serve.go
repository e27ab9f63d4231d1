package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/buttrest/internal/api"
	"github.com/nerrad567/buttrest/internal/audit"
	"github.com/nerrad567/buttrest/internal/gateway"
	"github.com/nerrad567/buttrest/internal/infrastructure/config"
	"github.com/nerrad567/buttrest/internal/infrastructure/database"
	"github.com/nerrad567/buttrest/internal/infrastructure/influxdb"
	"github.com/nerrad567/buttrest/internal/infrastructure/logging"
	"github.com/nerrad567/buttrest/internal/infrastructure/mqtt"
	"github.com/nerrad567/buttrest/internal/process"
	"github.com/nerrad567/buttrest/internal/session"
	"github.com/nerrad567/buttrest/migrations"
)

// engineStartTimeout bounds the wait for a managed engine to open its port.
const engineStartTimeout = 30 * time.Second

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

// run wires every component and blocks until ctx is cancelled.
// Deferred cleanup runs in reverse order: gateway, engine, sinks, database.
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting ButtRest",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checks := map[string]api.HealthChecker{}
	var sinks []gateway.ActivitySink
	var auditRepo audit.Repository

	// Command audit trail (optional)
	if cfg.Audit.Enabled {
		db, repo, err := openAudit(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		auditRepo = repo
		sinks = append(sinks, audit.NewActivitySink(repo))
		checks["database"] = db
	} else {
		log.Info("command audit disabled")
	}

	// MQTT activity publishing (optional)
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		sinks = append(sinks, mqtt.NewActivitySink(mqttClient, byte(cfg.MQTT.QoS)))
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB time series (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, influxdb.NewActivitySink(influxClient))
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Managed intiface-engine (optional)
	if cfg.Intiface.Engine.Managed {
		engine, err := startEngine(ctx, cfg.Intiface.Engine, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("stopping intiface-engine")
			if stopErr := engine.Stop(); stopErr != nil {
				log.Error("error stopping intiface-engine", "error", stopErr)
			}
		}()
	}

	metrics := gateway.NewMetrics()
	gw, err := newGateway(cfg, log, sinks, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := gw.Close(); closeErr != nil {
			log.Error("error closing gateway", "error", closeErr)
		}
	}()

	if err := metrics.Register(reg, gw); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Gateway:  gw,
		Audit:    auditRepo,
		Gatherer: reg,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b := gateway.NewBackOff(cfg.Intiface.Reconnect.InitialDelay, cfg.Intiface.Reconnect.MaxDelay)
		return gateway.Supervise(gctx, gw, b)
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("ButtRest stopped")
	return nil
}

// openAudit opens the database, applies migrations and prunes entries
// older than the configured retention.
func openAudit(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *audit.SQLiteRepository, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	repo := audit.NewSQLiteRepository(db.DB)
	if cfg.Audit.Retention > 0 {
		n, err := repo.Prune(ctx, time.Now().Add(-cfg.Audit.Retention))
		if err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, nil, fmt.Errorf("pruning audit trail: %w", err)
		}
		log.Info("audit trail pruned", "removed", n, "retention", cfg.Audit.Retention)
	}
	return db, repo, nil
}

// startEngine launches intiface-engine and waits until its WebSocket port
// accepts connections.
func startEngine(ctx context.Context, cfg config.EngineConfig, log *logging.Logger) (*process.Manager, error) {
	engine := process.NewEngine(cfg)
	engine.SetLogger(log)

	log.Info("starting intiface-engine", "binary", cfg.Binary, "port", cfg.Port)
	if err := engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting intiface-engine: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, engineStartTimeout)
	defer cancel()
	if err := process.WaitForPort(waitCtx, process.EngineAddr(cfg), 250*time.Millisecond); err != nil {
		engine.Stop() //nolint:errcheck // already failing
		return nil, fmt.Errorf("waiting for intiface-engine: %w", err)
	}

	log.Info("intiface-engine ready", "pid", engine.PID(), "addr", process.EngineAddr(cfg))
	return engine, nil
}

// newGateway builds the session and gateway from config. The gateway is
// not connected.
func newGateway(cfg *config.Config, log *logging.Logger, sinks []gateway.ActivitySink, metrics *gateway.Metrics) (*gateway.Gateway, error) {
	sess := session.New(session.Config{
		URL:            cfg.Intiface.URL,
		ClientName:     cfg.Intiface.ClientName,
		ConnectTimeout: cfg.Intiface.ConnectTimeout,
	})
	sess.SetLogger(log)

	gw, err := gateway.New(gateway.Config{
		CommandTimeout: cfg.Intiface.CommandTimeout,
		ScanDuration:   cfg.Intiface.ScanDuration,
		ActivityBuffer: cfg.Activity.Buffer,
	}, gateway.Deps{
		Session: sess,
		Metrics: metrics,
		Sinks:   sinks,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}
	return gw, nil
}
