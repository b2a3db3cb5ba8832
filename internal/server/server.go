// Package server renders the latest dashboard over HTTP, streams run
// progress over a websocket, and exposes prometheus metrics.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/pipeline"
	"github.com/driftlab/driftboard/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Generator runs one dashboard generation; satisfied by
// pipeline.Orchestrator.
type Generator interface {
	Run(ctx context.Context, userID string, events chan<- pipeline.ProgressEvent) (*model.Dashboard, error)
}

// Server is the HTTP surface over the store and the pipeline.
type Server struct {
	log       *slog.Logger
	db        *store.DB
	generator Generator
	userID    string
	registry  *prometheus.Registry
	hub       *hub
	pages     map[string]*template.Template
	mux       *http.ServeMux

	generating atomic.Bool
}

// New creates a new Server. generator may be nil; the generate endpoint
// then reports that generation is unavailable. registry may be nil to
// disable /metrics.
func New(log *slog.Logger, db *store.DB, generator Generator, userID string, registry *prometheus.Registry) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"dashboard.html", "runs.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		log:       log,
		db:        db,
		generator: generator,
		userID:    userID,
		registry:  registry,
		hub:       newHub(log),
		pages:     pages,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleDashboard)
	s.mux.HandleFunc("/runs", s.handleRuns)
	s.mux.HandleFunc("/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/dashboard", s.handleAPIDashboard)
	s.mux.HandleFunc("/ws/progress", s.hub.handleWS)
	if s.registry != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

func (s *Server) latestDashboard() *model.Dashboard {
	row, err := s.db.GetLatestDashboard(s.userID)
	if err != nil || row == nil {
		return nil
	}
	var dash model.Dashboard
	if err := json.Unmarshal([]byte(row.Payload), &dash); err != nil {
		s.log.Warn("stored dashboard does not parse", "run", row.RunID, "error", err)
		return nil
	}
	return &dash
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.render(w, "dashboard.html", map[string]any{
		"Dashboard":  s.latestDashboard(),
		"Generating": s.generating.Load(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.GetRecentRuns(s.userID, 20)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "runs.html", map[string]any{
		"Runs": runs,
	})
}

// handleGenerate kicks off a run in the background and returns
// immediately; progress is observable over the websocket.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if s.generator == nil {
		http.Error(w, "generation not configured", http.StatusServiceUnavailable)
		return
	}
	if !s.generating.CompareAndSwap(false, true) {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}

	go func() {
		defer s.generating.Store(false)

		events := make(chan pipeline.ProgressEvent, 32)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				s.hub.Broadcast(ev)
			}
		}()

		_, err := s.generator.Run(context.Background(), s.userID, events)
		close(events)
		<-done
		if err != nil {
			s.log.Error("background run failed", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "generation started")
}

func (s *Server) handleAPIDashboard(w http.ResponseWriter, r *http.Request) {
	row, err := s.db.GetLatestDashboard(s.userID)
	if err != nil || row == nil {
		http.Error(w, `{"error": "no dashboard yet"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, row.Payload)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", "name", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.Error("rendering template", "name", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(log *slog.Logger, db *store.DB, generator Generator, userID string, registry *prometheus.Registry, port int) error {
	srv, err := New(log, db, generator, userID, registry)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Info("server listening", "addr", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
