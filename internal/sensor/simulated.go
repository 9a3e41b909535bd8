package sensor

import (
	"context"
	"math/rand"
	"sync"
)

// Simulated is a Sensor that produces a bounded random walk around typical
// indoor conditions. It stands in for hardware during development and in
// tests; production deployments wire a real driver instead.
type Simulated struct {
	mu          sync.Mutex
	temperature float64
	humidity    float64
	pressure    float64
}

// NewSimulated creates a simulated sensor starting at 21 °C, 45 %RH and
// 1013 hPa.
func NewSimulated() *Simulated {
	return &Simulated{
		temperature: 21.0,
		humidity:    45.0,
		pressure:    1013.25,
	}
}

// Read returns the next sample of the random walk. It never fails.
func (s *Simulated) Read(context.Context) (Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.temperature = drift(s.temperature, 0.2, 5.0, 40.0)
	s.humidity = drift(s.humidity, 0.5, 10.0, 95.0)
	s.pressure = drift(s.pressure, 0.3, 980.0, 1050.0)

	p := s.pressure
	return Measurement{
		TemperatureC: s.temperature,
		Humidity:     s.humidity,
		Pressure:     &p,
	}, nil
}

// drift moves v by a uniform step in [-step, step], clamped to [lo, hi].
func drift(v, step, lo, hi float64) float64 {
	v += (rand.Float64()*2 - 1) * step
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
