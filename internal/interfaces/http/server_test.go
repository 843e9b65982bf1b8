package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwatch/reddwatch/internal/aggregate"
	"github.com/reddwatch/reddwatch/internal/export"
	"github.com/reddwatch/reddwatch/internal/model"
	"github.com/reddwatch/reddwatch/internal/query"
)

func seededServer(t *testing.T, items ...model.ProcessedItem) *Server {
	t.Helper()
	agg := aggregate.New(24*time.Hour, 200, nil)
	for _, it := range items {
		agg.Ingest(it)
	}
	q := query.New(agg, nil, nil, nil)
	return NewServer("127.0.0.1:0", q, nil)
}

func processed(id, source, ticker string, sentiment float64) model.ProcessedItem {
	return model.ProcessedItem{
		RawItem: model.RawItem{
			ID:         id,
			Source:     source,
			Title:      "title " + id,
			Score:      50,
			Comments:   10,
			CreatedUTC: time.Now().UTC().Add(-time.Hour),
		},
		Tickers:     []string{ticker},
		Sentiment:   sentiment,
		CollectedAt: time.Now().UTC(),
	}
}

func doGET(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTrendingEndpoint(t *testing.T) {
	s := seededServer(t,
		processed("p1", "stocks", "AAPL", 0.5),
		processed("p2", "wallstreetbets", "AAPL", 0.3),
		processed("p3", "stocks", "GME", -0.2),
	)

	rec := doGET(t, s, "/trending")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Tickers []model.TickerStat `json:"tickers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tickers, 2)
	assert.Equal(t, "AAPL", body.Tickers[0].Symbol)
	assert.Equal(t, 2, body.Tickers[0].Mentions)
	assert.Equal(t, "GME", body.Tickers[1].Symbol)
}

func TestTrendingLimit(t *testing.T) {
	s := seededServer(t,
		processed("p1", "stocks", "AAPL", 0),
		processed("p2", "stocks", "GME", 0),
	)

	rec := doGET(t, s, "/trending?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tickers []model.TickerStat `json:"tickers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Tickers, 1)
}

func TestTrendingInvalidLimit(t *testing.T) {
	s := seededServer(t)

	for _, limit := range []string{"abc", "0", "-3"} {
		rec := doGET(t, s, "/trending?limit="+limit)
		require.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Equal(t, "invalid_limit", errResp.Code)
		assert.NotEmpty(t, errResp.RequestID)
	}
}

func TestSentimentEndpoint(t *testing.T) {
	s := seededServer(t,
		processed("p1", "stocks", "AAPL", 0.6),
		processed("p2", "stocks", "TSLA", 0.4),
	)

	rec := doGET(t, s, "/sentiment")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary query.SentimentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, query.MoodBullish, summary.Mood)
	assert.Equal(t, 2, summary.Positive)
	assert.Equal(t, 2, summary.Total)
}

func TestHealthWithoutMonitor(t *testing.T) {
	s := seededServer(t)

	rec := doGET(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "stopped", health.Status)
	assert.False(t, health.Active)
}

func TestExportFull(t *testing.T) {
	s := seededServer(t,
		processed("p1", "stocks", "AAPL", 0.5),
		processed("p2", "wallstreetbets", "GME", -0.3),
	)

	rec := doGET(t, s, "/export")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc export.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 2, doc.Metadata.TotalItems)
	assert.Equal(t, 1, doc.TrendingTickers["AAPL"])
	assert.Contains(t, doc.SourceStats, "stocks")
}

func TestExportFiltered(t *testing.T) {
	s := seededServer(t,
		processed("p1", "stocks", "AAPL", 0.5),
		processed("p2", "wallstreetbets", "GME", -0.3),
	)

	rec := doGET(t, s, "/export?sources=stocks")
	require.Equal(t, http.StatusOK, rec.Code)

	var res query.ExportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Items, 1)
	assert.Equal(t, "stocks", res.Items[0].Source)
	assert.Equal(t, 1, res.Meta.TotalItems)
}

func TestExportInvalidWindow(t *testing.T) {
	s := seededServer(t)

	rec := doGET(t, s, "/export?window_hours=nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "invalid_window", errResp.Code)
}

func TestAlertsEmpty(t *testing.T) {
	s := seededServer(t)

	rec := doGET(t, s, "/alerts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Alerts []query.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Alerts)
	assert.Empty(t, body.Alerts)
}

func TestNotFound(t *testing.T) {
	s := seededServer(t)

	rec := doGET(t, s, "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "endpoint_not_found", errResp.Code)
}
