package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/logging"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/sim"
)

// Server exposes read-only snapshots of a running simulation over HTTP.
type Server struct {
	Sim     *sim.Simulator
	metrics http.Handler
	tpl     *template.Template
}

//go:embed templates/index.html
var content embed.FS

// NewServer creates a server for s. metrics may be nil to disable /metrics.
func NewServer(s *sim.Simulator, metrics http.Handler) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"pct": func(v float64) float64 { return v * 100 },
	}).ParseFS(content, "templates/index.html"))
	return &Server{Sim: s, metrics: metrics, tpl: tpl}
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/totals", s.handleTotals)
	mux.HandleFunc("/deliveries", s.handleDeliveries)
	mux.HandleFunc("/nodes", s.handleNodes)
	mux.HandleFunc("/config", s.handleConfig)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("admin shutdown failed", "err", err)
		}
	}()
	log.Info("admin UI listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type sfCount struct {
	SF    int
	Nodes int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	m := s.Sim.Metrics()
	var dist []sfCount
	for sf, n := range m.SFDistribution {
		dist = append(dist, sfCount{SF: sf, Nodes: n})
	}
	sort.Slice(dist, func(i, j int) bool { return dist[i].SF < dist[j].SF })
	seed, drawn := s.Sim.Seed()
	data := struct {
		RunID     string
		Seed      int64
		SeedDrawn bool
		Latest    sim.StepStats
		Metrics   sim.Metrics
		SF        []sfCount
		Config    *config.SimulationConfig
		Gateways  int
		Done      bool
	}{
		RunID:     s.Sim.RunID(),
		Seed:      seed,
		SeedDrawn: drawn,
		Latest:    s.Sim.Latest(),
		Metrics:   m,
		SF:        dist,
		Config:    s.Sim.GetConfig(),
		Gateways:  len(s.Sim.Gateways()),
		Done:      s.Sim.Done(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error("render admin index", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Latest())
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Metrics())
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Deliveries())
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"nodes":    s.Sim.Nodes(),
		"gateways": s.Sim.Gateways(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	seed, drawn := s.Sim.Seed()
	writeJSON(w, map[string]any{
		"run_id":     s.Sim.RunID(),
		"seed":       seed,
		"seed_drawn": drawn,
		"config":     s.Sim.GetConfig(),
	})
}
