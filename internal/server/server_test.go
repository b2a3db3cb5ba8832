package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/pipeline"
	"github.com/driftlab/driftboard/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleDashboard(runID string) *model.Dashboard {
	d := &model.Dashboard{
		RunID:       runID,
		UserID:      "u1",
		GeneratedAt: time.Now().UTC(),
		Theme: model.Theme{Name: "Neutral", Mood: "calm", Palette: model.Palette{
			Background: "#F5F5F4", Surface: "#FFFFFF", Text: "#1C1917",
			Muted: "#57534E", Accent: "#2563EB", AccentText: "#FFFFFF",
		}},
	}
	for i := 0; i < 4; i++ {
		d.Patterns = append(d.Patterns, model.EnrichedPattern{Pattern: model.Pattern{
			Title: fmt.Sprintf("Pattern %d", i), Description: "d", Confidence: 0.5,
		}})
		d.Cards = append(d.Cards, model.ContentCard{
			Title: fmt.Sprintf("Card %d", i), PatternTitle: "Pattern 0",
			Size: model.CardMedium, Body: "Some **markdown** body.", Confidence: 0.5,
		})
	}
	for i := 0; i < 3; i++ {
		d.Widgets = append(d.Widgets, model.Widget{
			Type: model.WidgetMap, Title: fmt.Sprintf("Widget %d", i),
			PatternTitle: "Pattern 0", Confidence: 0.5,
		})
	}
	return d
}

func saveDashboard(t *testing.T, db *store.DB, d *model.Dashboard) {
	t.Helper()
	if err := db.InsertRun(d.RunID, d.UserID); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	payload, _ := json.Marshal(d)
	if _, err := db.SaveDashboard(d.RunID, d.UserID, string(payload)); err != nil {
		t.Fatalf("SaveDashboard: %v", err)
	}
}

func newTestServer(t *testing.T, db *store.DB, gen Generator) *Server {
	t.Helper()
	srv, err := New(testLogger(), db, gen, "u1", prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func TestDashboardRoute(t *testing.T) {
	db := openTestDB(t)
	saveDashboard(t, db, sampleDashboard("r1"))
	srv := newTestServer(t, db, nil)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Card 0") {
		t.Error("expected card titles in response")
	}
	if !strings.Contains(body, "<strong>markdown</strong>") {
		t.Error("expected card body rendered through markdown")
	}
	if !strings.Contains(body, "--accent: #2563EB") {
		t.Error("expected palette as CSS variables")
	}
}

func TestDashboardRouteEmpty(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No dashboard yet") {
		t.Error("expected empty state")
	}
}

func TestAPIDashboard(t *testing.T) {
	db := openTestDB(t)
	saveDashboard(t, db, sampleDashboard("r1"))
	srv := newTestServer(t, db, nil)

	req := httptest.NewRequest("GET", "/api/dashboard", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var dash model.Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("response is not a dashboard: %v", err)
	}
	if dash.RunID != "r1" || len(dash.Cards) != 4 {
		t.Errorf("unexpected payload: run %q, %d cards", dash.RunID, len(dash.Cards))
	}
}

func TestAPIDashboardMissing(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)

	req := httptest.NewRequest("GET", "/api/dashboard", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRunsRoute(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertRun("r1", "u1"); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	srv := newTestServer(t, db, nil)

	req := httptest.NewRequest("GET", "/runs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "running") {
		t.Error("expected run status in response")
	}
}

type stubGenerator struct {
	events []pipeline.ProgressEvent
	done   chan struct{}
}

func (g *stubGenerator) Run(_ context.Context, _ string, events chan<- pipeline.ProgressEvent) (*model.Dashboard, error) {
	for _, ev := range g.events {
		events <- ev
	}
	close(g.done)
	return nil, nil
}

func TestGenerateStartsRun(t *testing.T) {
	gen := &stubGenerator{done: make(chan struct{})}
	srv := newTestServer(t, openTestDB(t), gen)

	req := httptest.NewRequest("POST", "/generate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	select {
	case <-gen.done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator never ran")
	}
}

func TestGenerateRejectsGet(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &stubGenerator{done: make(chan struct{})})

	req := httptest.NewRequest("GET", "/generate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Errorf("expected redirect for GET, got %d", rec.Code)
	}
}

func TestGenerateUnavailableWithoutGenerator(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)

	req := httptest.NewRequest("POST", "/generate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestProgressWebsocket(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// Give the hub a moment to register the client.
	time.Sleep(50 * time.Millisecond)
	srv.hub.Broadcast(pipeline.ProgressEvent{RunID: "r1", Stage: pipeline.StageDetect, Percent: 10, Message: "working"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev pipeline.ProgressEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if ev.Stage != pipeline.StageDetect || ev.Percent != 10 {
		t.Errorf("unexpected event: %+v", ev)
	}
}
