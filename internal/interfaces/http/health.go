package http

import (
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/reddwatch/reddwatch/internal/model"
)

// HealthResponse reports engine liveness, per-source polling state
// and fetch latency derived from the metrics registry.
type HealthResponse struct {
	Status    string                       `json:"status"` // healthy, degraded, stopped
	Timestamp time.Time                    `json:"timestamp"`
	Active    bool                         `json:"active"`
	Sources   map[string]model.SourceState `json:"sources"`
	Latency   LatencySummary               `json:"latency"`
}

// LatencySummary is the fetch-latency block of the health response.
type LatencySummary struct {
	AvgFetch time.Duration `json:"avg_fetch"`
	Fetches  uint64        `json:"fetches"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.query.Status()

	status := "healthy"
	if !state.Active {
		status = "stopped"
	} else {
		for _, src := range state.Sources {
			if src.Status == model.SourceAuthFailed || src.Status == model.SourceStoppedWithError {
				status = "degraded"
				break
			}
		}
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Active:    state.Active,
		Sources:   state.Sources,
		Latency:   s.fetchLatency(),
	})
}

// fetchLatency reads the fetch-duration histogram back out of the
// registry and condenses it to an average.
func (s *Server) fetchLatency() LatencySummary {
	if s.metrics == nil {
		return LatencySummary{}
	}
	families, err := s.metrics.Registry().Gather()
	if err != nil {
		return LatencySummary{}
	}

	var sum float64
	var count uint64
	for _, mf := range families {
		if mf.GetName() != "reddwatch_fetch_duration_seconds" {
			continue
		}
		if mf.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		for _, m := range mf.GetMetric() {
			h := m.GetHistogram()
			sum += h.GetSampleSum()
			count += h.GetSampleCount()
		}
	}
	if count == 0 {
		return LatencySummary{}
	}
	return LatencySummary{
		AvgFetch: time.Duration(sum / float64(count) * float64(time.Second)),
		Fetches:  count,
	}
}
