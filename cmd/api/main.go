package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/annotate"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/api"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/api/handlers"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/api/ws"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/capture"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/compliance"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/config"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/gate"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/notify"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/observability"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/queue"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/recorder"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/roster"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/storage"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting PPE gate service", "port", cfg.Server.Port, "device", cfg.Capture.Device)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Gate relay (optional)
	var notifier recorder.Notifier
	var mqttNotifier *notify.MQTTNotifier
	if cfg.MQTT.Broker != "" {
		mqttNotifier, err = notify.NewMQTTNotifier(cfg.MQTT)
		if err != nil {
			slog.Warn("mqtt notifier unavailable, gate relay disabled", "error", err)
		} else {
			notifier = mqttNotifier
			defer mqttNotifier.Close()
		}
	}

	// Inference engines, one per concurrent session
	if err := vision.InitRuntime(cfg.Vision.ONNXLibPath); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime()

	engines, err := vision.NewPool(cfg.Vision.WorkerCount, func() (handlers.Engine, error) {
		return vision.NewEngine(cfg.Vision)
	})
	if err != nil {
		slog.Error("load vision models", "error", err)
		os.Exit(1)
	}
	defer engines.Close()

	// Roster
	rost := roster.New(db)
	if err := rost.Reload(ctx); err != nil {
		slog.Error("load roster", "error", err)
		os.Exit(1)
	}
	strategy, err := roster.ParseStrategy(cfg.Gate.MatchStrategy)
	if err != nil {
		slog.Error("invalid match strategy", "error", err)
		os.Exit(1)
	}

	// Event sink
	var snapshots recorder.SnapshotStore
	if cfg.Gate.SnapshotsEnabled {
		snapshots = minioStore
	}
	rec := recorder.New(db, snapshots, producer, notifier, recorder.Config{
		FailureThreshold: cfg.Gate.BreakerFailures,
		OpenTimeout:      cfg.Gate.BreakerOpenFor,
		SnapshotTimeout:  cfg.Gate.SnapshotTimeout,
	})

	// WebSocket hub fed by the event stream
	hub := ws.NewHub()
	go hub.Run(ctx)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.ConsumeEvents(ctx, "api-events", hub.HandleEvent); err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	gateCfg := gate.Config{
		Rules:          compliance.Rules{Mandatory: cfg.Gate.MandatoryPPE, Optional: cfg.Gate.OptionalPPE},
		DebounceWindow: cfg.Gate.DebounceWindow,
		CommandPoll:    cfg.Gate.CommandPoll,
		TickRate:       cfg.Gate.TickRate,
		StoreTimeout:   cfg.Gate.StoreTimeout,
	}
	if cfg.Gate.CCTVID != "" {
		id, err := uuid.Parse(cfg.Gate.CCTVID)
		if err != nil {
			slog.Error("invalid gate cctv_id", "value", cfg.Gate.CCTVID, "error", err)
			os.Exit(1)
		}
		gateCfg.CCTVID = &id
	}

	gateH := handlers.NewGateHandler(engines, gate.Deps{
		Opener:    capture.NewOpener(cfg.Capture),
		Roster:    rost,
		Matcher:   roster.NewMatcher(cfg.Gate.MatchThreshold, strategy),
		Sink:      rec,
		Store:     db,
		Annotator: annotate.New(cfg.Gate.JPEGQuality),
	}, gateCfg)

	checks := []handlers.ReadinessCheck{
		{Name: "postgres", Check: db.Ping},
		{Name: "minio", Check: minioStore.Ping},
		{Name: "nats", Check: func(context.Context) error { return producer.Ping() }},
		{Name: "event_store", Optional: true, Check: func(context.Context) error {
			if rec.State() == gobreaker.StateOpen {
				return errors.New("circuit breaker open")
			}
			return nil
		}},
	}
	if mqttNotifier != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "mqtt", Optional: true, Check: func(context.Context) error {
			if !mqttNotifier.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		System:      handlers.NewSystemHandler(checks...),
		Gate:        gateH,
		Workers:     handlers.NewWorkerHandler(db, rost),
		CCTV:        handlers.NewCCTVHandler(db),
		Logs:        handlers.NewLogHandler(db, minioStore),
		Hub:         hub,
	})

	// Websocket sessions are long lived, so no read/write timeouts.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Cancelling ctx on shutdown stops running sessions and frees the camera.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
