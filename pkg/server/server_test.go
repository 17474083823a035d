package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"joinguard-hq/warden/pkg/config"
	"joinguard-hq/warden/pkg/telemetry/health"
	"joinguard-hq/warden/pkg/telemetry/metrics"
)

func newTestServer(t *testing.T, checkErr error) *Server {
	t.Helper()
	checker := health.New(time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error { return checkErr })

	return New(config.ServerConfig{ListenAddress: "127.0.0.1:0"}, Options{
		Checker:     checker,
		Metrics:     metrics.NewCollector(&config.MetricsConfig{}, prometheus.NewRegistry()),
		MetricsPath: "/metrics",
		Version:     health.VersionInfo{Version: "1.0.0"},
	})
}

func TestHandler_Routes(t *testing.T) {
	tests := []struct {
		name     string
		checkErr error
		path     string
		wantCode int
		wantBody string
	}{
		{"liveness", nil, "/health", http.StatusOK, `"status":"ok"`},
		{"ready", nil, "/ready", http.StatusOK, `"status":"ready"`},
		{"not ready", errors.New("store down"), "/ready", http.StatusServiceUnavailable, "store down"},
		{"version", nil, "/version", http.StatusOK, `"version":"1.0.0"`},
		{"metrics", nil, "/metrics", http.StatusOK, "warden_dispatch_panics_total"},
		{"unknown", nil, "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.checkErr).Handler()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_MetricsDisabled(t *testing.T) {
	srv := New(config.ServerConfig{}, Options{Checker: health.New(0)})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404 without a collector", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if id := rec.Header().Get(RequestIDHeader); len(id) != 36 {
		t.Errorf("generated request id = %q, want a UUID", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "probe-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if id := rec.Header().Get(RequestIDHeader); id != "probe-1" {
		t.Errorf("request id = %q, want the supplied one echoed", id)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if srv.IsRunning() {
		t.Error("IsRunning = true after shutdown")
	}
}

func TestStart_ListenError(t *testing.T) {
	srv := New(config.ServerConfig{ListenAddress: "256.0.0.1:bad"}, Options{Checker: health.New(0)})
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
	if srv.IsRunning() {
		t.Error("IsRunning = true after failed start")
	}
}
