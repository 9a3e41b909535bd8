package backend

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
)

func TestClassifyInflux(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := &ihttp.Error{StatusCode: tt.status, Message: "server said no"}
			err := classifyInflux(fmt.Errorf("influxdb write: %w", apiErr))

			if got := IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v", got, tt.wantTransient)
			}
			if got := IsPermanent(err); got == tt.wantTransient {
				t.Errorf("IsPermanent = %v, want %v", got, !tt.wantTransient)
			}
		})
	}
}

func TestClassifyInflux_PlainErrorIsTransient(t *testing.T) {
	err := classifyInflux(errors.New("dial tcp: connection refused"))
	if !IsTransient(err) {
		t.Errorf("connectivity error not transient: %v", err)
	}
}

func TestNewInfluxDB_Kind(t *testing.T) {
	b := NewInfluxDB(config.InfluxDBConfig{URL: "http://localhost:8086"}, "environment", "chamber-01")
	defer b.Close()

	if b.Kind() != config.BackendInfluxDB {
		t.Errorf("Kind() = %q, want %q", b.Kind(), config.BackendInfluxDB)
	}
}
