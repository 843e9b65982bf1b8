package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reddwatch/reddwatch/internal/export"
	"github.com/reddwatch/reddwatch/internal/query"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.query.Status())
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 10)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers":   s.query.TrendingTickers(limit),
		"generated": time.Now().UTC(),
	})
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.query.SentimentSummary())
}

func (s *Server) handlePriority(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 20)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":     s.query.PriorityItems(limit),
		"generated": time.Now().UTC(),
	})
}

// handleExport serves the full export document, or a filtered item
// export when sources/window query parameters are present.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sourcesParam := r.URL.Query().Get("sources")
	windowParam := r.URL.Query().Get("window_hours")

	if sourcesParam == "" && windowParam == "" {
		s.writeJSON(w, http.StatusOK, export.Build(s.query))
		return
	}

	var sources []string
	if sourcesParam != "" {
		sources = strings.Split(sourcesParam, ",")
	}
	windowHours := 0
	if windowParam != "" {
		n, err := strconv.Atoi(windowParam)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, "invalid_window",
				"window_hours must be a non-negative integer")
			return
		}
		windowHours = n
	}
	s.writeJSON(w, http.StatusOK, s.query.Export(sources, windowHours))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.query.AlertCheck()
	if alerts == nil {
		alerts = []query.Alert{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":    alerts,
		"generated": time.Now().UTC(),
	})
}

func limitParam(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errInvalidLimit
	}
	return n, nil
}

var errInvalidLimit = limitError{}

type limitError struct{}

func (limitError) Error() string { return "limit must be a positive integer" }
