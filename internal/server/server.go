// Package server exposes the organism over HTTP and WebSocket. Every
// endpoint is an act of tending the garden.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"w0rd/internal/config"
	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/organism"
	"w0rd/internal/store"
)

// broadcastEvents are the hormones mirrored onto the garden stream.
var broadcastEvents = []string{
	"seed_planted", "tree_grown", "photosynthesis",
	"ethical_violation", "ethical_clearance", "healing_complete",
	"season_change", "dream_generated", "lucid_dream",
	"pollination", "quorum_reached", "pulse_generated",
	"wisdom_milestone", "apoptosis", "emergency_winter",
	"agent_spawned", "agent_working", "agent_completed", "agent_retired",
	"emotional_shift", "inner_thought", "core_memory_formed",
	"high_surprise", "low_surprise", "self_model_updated",
	"auto_water", "auto_promote", "auto_harvest", "auto_compost",
	"auto_dream_planted", "auto_pulse",
}

// Server serves the garden gate.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	bus    *hormones.Bus
	org    *organism.Organism
	cortex *llm.Client
	log    *zap.Logger
	hub    *hub

	httpSrv        *http.Server
	removeThinking func()
}

// New builds the server and wires hormone and thinking broadcasts to
// the WebSocket hub.
func New(cfg *config.Config, st *store.Store, bus *hormones.Bus, org *organism.Organism, cortex *llm.Client) *Server {
	var log *zap.Logger
	if cfg.Logging.Debug {
		log, _ = zap.NewDevelopment()
	} else {
		log, _ = zap.NewProduction()
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		bus:    bus,
		org:    org,
		cortex: cortex,
		log:    log,
		hub:    newHub(log),
	}

	for _, name := range broadcastEvents {
		bus.Subscribe(name, func(ctx context.Context, h hormones.Hormone) error {
			s.hub.broadcastGarden(h.Name, h.Payload)
			return nil
		})
	}
	s.removeThinking = llm.OnThinking(func(ev llm.ThinkingEvent) {
		s.hub.broadcastThinking(ev)
	})

	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      s.accessLog(cors(s.Routes())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// Routes builds the full HTTP mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)

	mux.HandleFunc("POST /plant", s.handlePlant)
	mux.HandleFunc("POST /plant/many", s.handlePlantMany)
	mux.HandleFunc("GET /seed/{id}", s.handleGetSeed)
	mux.HandleFunc("GET /seed/{id}/lineage", s.handleSeedLineage)
	mux.HandleFunc("POST /seed/{id}/water", s.handleWater)
	mux.HandleFunc("POST /seed/{id}/harvest", s.handleHarvest)
	mux.HandleFunc("POST /seed/{id}/compost", s.handleCompost)
	mux.HandleFunc("POST /seed/{id}/resurrect", s.handleResurrect)

	mux.HandleFunc("GET /garden", s.handleGarden)
	mux.HandleFunc("GET /ecosystem", s.handleEcosystem)
	mux.HandleFunc("GET /pulse", s.handlePulse)
	mux.HandleFunc("GET /pulse/history", s.handlePulseHistory)
	mux.HandleFunc("GET /soil", s.handleSoil)
	mux.HandleFunc("GET /soil/richness", s.handleSoilRichness)

	mux.HandleFunc("GET /mycelium", s.handleMycelium)
	mux.HandleFunc("GET /mycelium/pollen", s.handlePollenMap)
	mux.HandleFunc("GET /dreams", s.handleDreams)
	mux.HandleFunc("POST /dreams/{id}/plant", s.handlePlantDream)
	mux.HandleFunc("GET /wounds", s.handleWounds)

	mux.HandleFunc("POST /seasons/turn", s.handleTurnSeason)
	mux.HandleFunc("GET /seasons", s.handleSeasons)
	mux.HandleFunc("GET /gardener", s.handleGetGardener)
	mux.HandleFunc("PUT /gardener", s.handleUpdateGardener)
	mux.HandleFunc("GET /hormones/recent", s.handleRecentHormones)

	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /agents/{id}/approve", s.handleApproveAgent)
	mux.HandleFunc("POST /agents/{id}/retire", s.handleRetireAgent)

	mux.HandleFunc("GET /consciousness", s.handleConsciousness)
	mux.HandleFunc("GET /consciousness/emotions", s.handleEmotions)
	mux.HandleFunc("GET /consciousness/thoughts", s.handleThoughts)
	mux.HandleFunc("GET /consciousness/memories", s.handleMemories)
	mux.HandleFunc("GET /consciousness/predictions", s.handlePredictions)
	mux.HandleFunc("GET /consciousness/self", s.handleSelfModel)

	mux.HandleFunc("GET /lifecycle/status", s.handleLifecycleStatus)
	mux.HandleFunc("GET /ollama/status", s.handleOllamaStatus)

	mux.HandleFunc("GET /ws/garden", s.handleGardenWS)
	mux.HandleFunc("GET /ws/thinking", s.handleThinkingWS)

	return mux
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("garden gate open", zap.String("listen", s.cfg.Server.Listen))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown closes the gate gracefully.
func (s *Server) Shutdown() error {
	if s.removeThinking != nil {
		s.removeThinking()
	}
	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)
	s.log.Info("garden gate closed")
	_ = s.log.Sync()
	return err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// cors allows any origin. The garden gate is open to every browser.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
