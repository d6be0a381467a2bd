// Package runtime assembles the relay server: HTTP routes, audit store,
// optional outcome bus, scheduled pruning and telemetry.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/eventstore"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/relay"
	"github.com/loqalabs/loqa-scribe/internal/web"
	"github.com/robfig/cron/v3"
)

const defaultOutcomeLimit = 50

type Runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	version string

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup

	relay    *relay.Relay
	store    *eventstore.Store
	embedded *natsserver.EmbeddedServer
	bus      *bus.Client
	pruner   *cron.Cron
}

func New(cfg config.Config, logger *slog.Logger, version string) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		version: version,
	}
}

// Start blocks until ctx is cancelled, then shuts everything down.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = tel.Shutdown
	metricsHandler := tel.metrics

	if err := r.initComponents(ctx); err != nil {
		r.closeComponents()
		return err
	}

	handler, err := r.routes()
	if err != nil {
		r.closeComponents()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("metrics", r.cfg.Telemetry.PrometheusBind),
		slog.String("version", r.version))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.closeComponents()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(name+" server failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) initComponents(ctx context.Context) error {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.store = store

	upstream := relay.NewGroqUpstream(r.cfg.Relay.BaseURL, r.cfg.Relay.Model, nil)
	timeout := time.Duration(r.cfg.Relay.TimeoutMS) * time.Millisecond
	r.relay = relay.New(upstream, r.cfg.Relay.ResolveAPIKey, timeout, r.logger)
	r.logger.Info("relay configured",
		slog.String("model", upstream.Model()),
		slog.String("base_url", r.cfg.Relay.BaseURL),
		slog.Duration("timeout", timeout))
	r.relay.AddObserver(store)

	if r.cfg.Bus.Enabled {
		if err := r.initBus(ctx); err != nil {
			return err
		}
	}

	if schedule := r.cfg.EventStore.PruneSchedule; schedule != "" && r.cfg.EventStore.RetentionMode != "ephemeral" {
		r.pruner = cron.New()
		if _, err := r.pruner.AddFunc(schedule, r.prune); err != nil {
			return fmt.Errorf("schedule prune: %w", err)
		}
		r.pruner.Start()
	}

	if r.cfg.Relay.ResolveAPIKey() == "" {
		r.logger.Warn("no upstream API key configured; transcription requests will fail",
			slog.String("env", r.cfg.Relay.APIKeyEnv))
	}
	return nil
}

func (r *Runtime) initBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
		r.embedded = srv
		busCfg.Servers = []string{srv.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	r.bus = client

	maxAge := time.Duration(r.cfg.EventStore.RetentionDays) * 24 * time.Hour
	if err := client.EnsureStream(protocol.StreamRelayOutcomes, []string{protocol.SubjectRelayOutcome}, maxAge); err != nil {
		r.logger.Warn("outcome stream unavailable; publishing without persistence", slog.String("error", err.Error()))
	}
	r.relay.AddObserver(bus.NewOutcomePublisher(client, r.cfg.ServiceName))
	return nil
}

func (r *Runtime) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := r.store.Prune(ctx); err != nil {
		r.logger.Warn("scheduled prune failed", slog.String("error", err.Error()))
	}
}

func (r *Runtime) closeComponents() {
	if r.pruner != nil {
		<-r.pruner.Stop().Done()
		r.pruner = nil
	}
	if r.bus != nil {
		r.bus.Close()
		r.bus = nil
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
		r.embedded = nil
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("event store close failed", slog.String("error", err.Error()))
		}
		r.store = nil
	}
}

func (r *Runtime) routes() (http.Handler, error) {
	page, err := web.NewHandler(web.Options{
		TranscribePath: relay.Path,
		MaxUploadBytes: r.cfg.Relay.MaxUploadBytes,
		Version:        r.version,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("build web handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.Handle(relay.Path, relay.NewHandler(r.relay, r.cfg.Relay.MaxUploadBytes, r.logger))
	mux.HandleFunc("/api/outcomes", r.handleOutcomes)
	page.Register(mux)
	return mux, nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type outcomesResponse struct {
	Outcomes []eventstore.Record `json:"outcomes"`
	Counts   map[string]int      `json:"counts"`
}

func (r *Runtime) handleOutcomes(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	limit := defaultOutcomeLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := r.store.ListOutcomes(req.Context(), limit)
	if err != nil {
		r.logger.Error("list outcomes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	counts, err := r.store.CountByOutcome(req.Context())
	if err != nil {
		r.logger.Error("count outcomes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	if records == nil {
		records = []eventstore.Record{}
	}
	writeJSON(w, http.StatusOK, outcomesResponse{Outcomes: records, Counts: counts})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
