package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
	"github.com/openchamber/openchamber-core/internal/sensor"
)

func testReadings(n int) []sensor.Reading {
	readings := make([]sensor.Reading, 0, n)
	for i := 0; i < n; i++ {
		readings = append(readings, sensor.NewReading(
			sensor.Measurement{TemperatureC: 20 + float64(i), Humidity: 50},
			time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
		))
	}
	return readings
}

func newVM(t *testing.T, url string) *VictoriaMetrics {
	t.Helper()
	return NewVictoriaMetrics(config.VictoriaMetricsConfig{URL: url, Timeout: 5}, "environment", "chamber-01")
}

func TestVictoriaMetrics_WriteSendsBatch(t *testing.T) {
	var mu sync.Mutex
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/write" {
			t.Errorf("path = %q, want /write", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := newVM(t, srv.URL)
	if err := b.Write(context.Background(), testReadings(3)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	lines := strings.Split(body, "\n")
	if len(lines) != 3 {
		t.Fatalf("body has %d lines, want 3:\n%s", len(lines), body)
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, "environment,chamber=chamber-01 ") {
			t.Errorf("line %d = %q, want environment measurement with chamber tag", i, line)
		}
	}
	if !strings.Contains(lines[0], "temperature_c=20") {
		t.Errorf("line 0 = %q, missing temperature_c=20", lines[0])
	}
}

func TestVictoriaMetrics_WriteClassifiesStatus(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))

		err := newVM(t, srv.URL).Write(context.Background(), testReadings(1))
		srv.Close()

		if err == nil {
			t.Errorf("status %d: Write() error = nil", tt.status)
			continue
		}
		if got := IsTransient(err); got != tt.wantTransient {
			t.Errorf("status %d: IsTransient = %v, want %v (err: %v)", tt.status, got, tt.wantTransient, err)
		}
		if got := IsPermanent(err); got == tt.wantTransient {
			t.Errorf("status %d: IsPermanent = %v, want %v", tt.status, got, !tt.wantTransient)
		}
	}
}

func TestVictoriaMetrics_ConnectionRefusedIsTransient(t *testing.T) {
	// Reserve a port and close it so the connection is refused.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newVM(t, url).Write(context.Background(), testReadings(1))
	if err == nil {
		t.Fatal("Write() error = nil against closed server")
	}
	if !IsTransient(err) {
		t.Errorf("connection failure not transient: %v", err)
	}
}

func TestVictoriaMetrics_EnsureTargetExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newVM(t, srv.URL).EnsureTargetExists(context.Background()); err != nil {
		t.Errorf("EnsureTargetExists() error = %v", err)
	}
}

func TestVictoriaMetrics_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "vm" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := NewVictoriaMetrics(config.VictoriaMetricsConfig{
		URL: srv.URL, Username: "vm", Password: "secret", Timeout: 5,
	}, "environment", "chamber-01")

	if err := b.Write(context.Background(), testReadings(1)); err != nil {
		t.Errorf("Write() with credentials error = %v", err)
	}
}
