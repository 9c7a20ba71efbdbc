package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nova-run/orchestrator/internal/archive"
	"github.com/nova-run/orchestrator/internal/config"
	"github.com/nova-run/orchestrator/internal/dedupe"
	"github.com/nova-run/orchestrator/internal/devlog"
	"github.com/nova-run/orchestrator/internal/dispatch"
	"github.com/nova-run/orchestrator/internal/engine"
	"github.com/nova-run/orchestrator/internal/observability"
	"github.com/nova-run/orchestrator/internal/pending"
	"github.com/nova-run/orchestrator/internal/shortterm"
	"github.com/nova-run/orchestrator/internal/sweep"
	"github.com/nova-run/orchestrator/internal/wshub"
	"github.com/nova-run/orchestrator/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher and chat execution engine",
		Long: `Start the turn dispatcher and chat execution engine.

The server will:
1. Load and validate configuration
2. Open the transcript session store (Postgres or SQLite)
3. Connect every provider with credentials configured
4. Start the websocket hub and the TTL sweep scheduler
5. Serve turns until a shutdown signal arrives`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	logger.Info(ctx, "configuration loaded",
		"config", configPath,
		"http_port", cfg.Server.HTTPPort,
		"default_provider", cfg.Providers.Default,
	)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:  "novacore",
		Environment:  "production",
		Endpoint:     cfg.Observability.OTLPEndpoint,
		SamplingRate: cfg.Observability.SamplingRate,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	sessions, closeSessions, err := openSessionStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer closeSessions()

	registry, integrations := buildProviderRegistry(ctx, cfg.Providers)
	if registry == nil {
		return fmt.Errorf("no provider credentials configured; set at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, or AWS_REGION for Bedrock")
	}

	pendingStore := pending.New(cfg.Pending.TTL)
	shortTermStore := shortterm.New(cfg.ShortTerm.TTL)
	dedupeFilter := dedupe.New(0)

	var archiver devlog.Archiver
	if cfg.DevLog.Archive.Enabled {
		mirror, err := archive.NewS3Mirror(ctx, archive.S3Config{
			Bucket: cfg.DevLog.Archive.Bucket,
			Prefix: cfg.DevLog.Archive.Prefix,
			Region: cfg.DevLog.Archive.Region,
		})
		if err != nil {
			return fmt.Errorf("open archive mirror: %w", err)
		}
		archiver = mirror
	}

	var devLogSink *devlog.Sink
	if cfg.DevLog.Enabled {
		devLogSink, err = devlog.NewSink(devlog.Config{
			Dir:      cfg.DevLog.Path,
			Archiver: archiver,
		})
		if err != nil {
			return fmt.Errorf("open dev log sink: %w", err)
		}
		defer devLogSink.Close()
	}

	alertEvaluator := devlog.NewAlertEvaluator(nil, slog.Default())

	hub := wshub.New(slog.Default())
	hudTokens := wshub.NewHudTokenIssuer(cfg.WSHub.HudTokenSecret, cfg.WSHub.HudTokenExpiry)

	chatEngine := engine.New(registry, integrations)
	chatEngine.Sessions = sessions
	chatEngine.Pending = pendingStore
	chatEngine.ShortTerm = shortTermStore
	chatEngine.Broadcaster = hub
	chatEngine.HudTokens = hudTokens
	chatEngine.DevLog = devLogSink
	chatEngine.DevLogMode = devlog.RedactMode(cfg.DevLog.RedactMode)
	chatEngine.Metrics = metrics
	chatEngine.Tracer = tracer
	chatEngine.Config = engine.Config{
		MaxToolSteps:        cfg.ToolLoop.MaxIterations,
		ToolLoopMaxDuration: cfg.ToolLoop.MaxWallClock,
		MaxToolCallsPerStep: cfg.ToolLoop.MaxToolCalls,
	}

	dispatcher := dispatch.New(dedupeFilter, pendingStore, shortTermStore, dispatch.Handlers{
		ChatEngine: chatEngine,
	})

	sweepScheduler := sweep.New(sweep.Config{
		Spec:          cfg.Sweep.Spec,
		Stores:        []sweep.Sweepable{pendingStore, shortTermStore},
		AlertResetter: alertEvaluator,
		Logger:        slog.Default(),
	})
	if err := sweepScheduler.Start(); err != nil {
		return fmt.Errorf("start sweep scheduler: %w", err)
	}
	defer sweepScheduler.Stop()

	turnSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: newTurnMux(dispatcher, hub),
	}
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErrs := make(chan error, 2)
	go func() { serveErrs <- turnSrv.ListenAndServe() }()
	go func() { serveErrs <- metricsSrv.ListenAndServe() }()

	logger.Info(ctx, "novacore started",
		"http_addr", turnSrv.Addr,
		"metrics_addr", metricsSrv.Addr,
	)

	select {
	case <-runCtx.Done():
		logger.Info(ctx, "shutdown signal received, draining")
	case err := <-serveErrs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server exited unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = turnSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info(ctx, "novacore stopped gracefully")
	return nil
}

// newTurnMux wires the turn-intake endpoint and the websocket upgrade
// endpoint onto one mux.
func newTurnMux(dispatcher *dispatch.Dispatcher, hub *wshub.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/turns", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var turn models.Turn
		if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
			http.Error(w, fmt.Sprintf("decode turn: %v", err), http.StatusBadRequest)
			return
		}
		turn.ReceivedAt = time.Now()

		summary, err := dispatcher.Dispatch(r.Context(), turn)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			http.Error(w, "session query parameter is required", http.StatusBadRequest)
			return
		}
		if err := hub.ServeHTTP(sessionID, w, r); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

const shutdownGrace = 5 * time.Second
