// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tractionsync/internal/logging"
)

// DefaultSlowThreshold marks admin requests worth a warning. Synchronous
// endpoints only enqueue work, so anything slower points at a wedged
// store or queue.
const DefaultSlowThreshold = time.Second

// RequestSample is one observed request.
type RequestSample struct {
	Endpoint   string
	Duration   time.Duration
	StatusCode int
	At         time.Time
}

// EndpointStats aggregates the samples of one "METHOD pattern" key.
type EndpointStats struct {
	Endpoint string  `json:"endpoint"`
	Requests int     `json:"requests"`
	AvgMS    float64 `json:"avg_ms"`
	P50MS    int64   `json:"p50_ms"`
	P95MS    int64   `json:"p95_ms"`
	MaxMS    int64   `json:"max_ms"`
}

// PerformanceMonitor keeps a sliding window of recent request timings.
type PerformanceMonitor struct {
	mu            sync.RWMutex
	samples       []RequestSample
	window        int
	slowThreshold time.Duration
}

// NewPerformanceMonitor keeps at most window samples.
func NewPerformanceMonitor(window int, slowThreshold time.Duration) *PerformanceMonitor {
	if window <= 0 {
		window = 1000
	}
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	return &PerformanceMonitor{
		samples:       make([]RequestSample, 0, window),
		window:        window,
		slowThreshold: slowThreshold,
	}
}

// Record adds a sample, evicting the oldest once the window is full.
func (pm *PerformanceMonitor) Record(s RequestSample) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if len(pm.samples) == pm.window {
		copy(pm.samples, pm.samples[1:])
		pm.samples = pm.samples[:len(pm.samples)-1]
	}
	pm.samples = append(pm.samples, s)
}

// Stats aggregates the window per endpoint, busiest first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	byEndpoint := make(map[string][]int64)
	for _, s := range pm.samples {
		byEndpoint[s.Endpoint] = append(byEndpoint[s.Endpoint], s.Duration.Milliseconds())
	}
	pm.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, ms := range byEndpoint {
		sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })
		var sum int64
		for _, d := range ms {
			sum += d
		}
		stats = append(stats, EndpointStats{
			Endpoint: endpoint,
			Requests: len(ms),
			AvgMS:    float64(sum) / float64(len(ms)),
			P50MS:    percentile(ms, 0.50),
			P95MS:    percentile(ms, 0.95),
			MaxMS:    ms[len(ms)-1],
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Requests != stats[j].Requests {
			return stats[i].Requests > stats[j].Requests
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

// Middleware records every request and warns about slow ones.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		endpoint := r.Method + " " + routePattern(r)
		pm.Record(RequestSample{Endpoint: endpoint, Duration: elapsed, StatusCode: rec.statusCode, At: start})

		if elapsed > pm.slowThreshold {
			logging.Ctx(r.Context()).Warn().
				Str("endpoint", endpoint).
				Dur("duration", elapsed).
				Dur("threshold", pm.slowThreshold).
				Msg("Slow admin request")
		}
	})
}

// percentile expects sorted input.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
