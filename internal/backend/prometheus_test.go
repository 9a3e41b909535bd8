package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
)

func TestPrometheus_WritePushesNewestReading(t *testing.T) {
	var mu sync.Mutex
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := NewPrometheus(config.PrometheusConfig{
		PushgatewayURL: srv.URL,
		Job:            "chamberd",
		Instance:       "chamber-01",
	}, "chamber-01")

	if err := b.Write(context.Background(), testReadings(3)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(path, "/metrics/job/chamberd") {
		t.Errorf("push path = %q, want job chamberd", path)
	}
	if !strings.Contains(path, "instance/chamber-01") {
		t.Errorf("push path = %q, want instance grouping", path)
	}
	// Gauges must reflect the newest reading (22°C), not the oldest.
	if !strings.Contains(body, "chamber_temperature_celsius") {
		t.Errorf("push body missing temperature gauge:\n%s", body)
	}
	if !strings.Contains(body, "chamber_readings_total") {
		t.Errorf("push body missing readings counter:\n%s", body)
	}
}

func TestPrometheus_WriteFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := NewPrometheus(config.PrometheusConfig{PushgatewayURL: srv.URL, Job: "chamberd"}, "chamber-01")

	err := b.Write(context.Background(), testReadings(1))
	if err == nil {
		t.Fatal("Write() error = nil on gateway failure")
	}
	if !IsTransient(err) {
		t.Errorf("push failure not transient: %v", err)
	}
}

func TestPrometheus_EmptyBatchIsNoop(t *testing.T) {
	b := NewPrometheus(config.PrometheusConfig{PushgatewayURL: "http://localhost:1", Job: "chamberd"}, "chamber-01")

	if err := b.Write(context.Background(), nil); err != nil {
		t.Errorf("Write(nil) error = %v, want nil without contacting gateway", err)
	}
}

func TestPrometheus_EnsureTargetExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/-/ready" {
			t.Errorf("path = %q, want /-/ready", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := NewPrometheus(config.PrometheusConfig{PushgatewayURL: srv.URL, Job: "chamberd"}, "chamber-01")
	if err := b.EnsureTargetExists(context.Background()); err != nil {
		t.Errorf("EnsureTargetExists() error = %v", err)
	}
}
