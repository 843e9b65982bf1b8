package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwatch/reddwatch/internal/aggregate"
	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/model"
)

func seeded(t *testing.T, window time.Duration, items ...model.ProcessedItem) *aggregate.Aggregator {
	t.Helper()
	agg := aggregate.New(window, 50, nil)
	for _, item := range items {
		agg.Ingest(item)
	}
	return agg
}

func item(id, source string, created time.Time, sentiment float64, tickers ...string) model.ProcessedItem {
	return model.ProcessedItem{
		RawItem: model.RawItem{
			ID:         id,
			Source:     source,
			Title:      "item " + id,
			Score:      50,
			Comments:   10,
			CreatedUTC: created,
		},
		Sentiment:   sentiment,
		Tickers:     tickers,
		CollectedAt: created,
	}
}

func TestTrendingTickers_DeterministicOrder(t *testing.T) {
	now := time.Now().UTC()

	// AAPL: 3 mentions. TSLA and GME: 2 each, GME seen more recently.
	// NVDA and AMD: 1 each at the same instant, alphabetical fallback.
	same := now.Add(-time.Hour)
	agg := seeded(t, 24*time.Hour,
		item("1", "stocks", now.Add(-5*time.Hour), 0, "AAPL", "TSLA"),
		item("2", "stocks", now.Add(-4*time.Hour), 0, "AAPL"),
		item("3", "stocks", now.Add(-3*time.Hour), 0, "AAPL", "TSLA"),
		item("4", "stocks", now.Add(-2*time.Hour), 0, "GME"),
		item("5", "stocks", now.Add(-1*time.Hour), 0, "GME"),
		item("6", "stocks", same, 0, "NVDA"),
		item("7", "stocks", same, 0, "AMD"),
	)

	q := New(agg, nil, nil, nil)
	got := q.TrendingTickers(5)

	require.Len(t, got, 5)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, 3, got[0].Mentions)
	assert.Equal(t, "GME", got[1].Symbol, "tie on count broken by most recent last-seen")
	assert.Equal(t, "TSLA", got[2].Symbol)
	assert.Equal(t, "AMD", got[3].Symbol, "full tie broken alphabetically")
	assert.Equal(t, "NVDA", got[4].Symbol)
}

func TestTrendingTickers_Limit(t *testing.T) {
	now := time.Now().UTC()
	agg := seeded(t, 24*time.Hour,
		item("1", "stocks", now, 0, "AAPL", "TSLA", "GME"),
	)
	q := New(agg, nil, nil, nil)

	assert.Len(t, q.TrendingTickers(2), 2)
	assert.Len(t, q.TrendingTickers(0), 3, "zero limit returns everything")
}

func TestSentimentSummary_Moods(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		sentiments []float64
		wantMood   string
	}{
		{"bullish", []float64{0.5, 0.3, 0.2}, MoodBullish},
		{"bearish", []float64{-0.5, -0.2, 0.1}, MoodBearish},
		{"exact midpoint is neutral", []float64{0.4, -0.4}, MoodNeutral},
		{"empty is neutral", nil, MoodNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]model.ProcessedItem, 0, len(tt.sentiments))
			for i, s := range tt.sentiments {
				items = append(items, item(string(rune('a'+i)), "stocks", now, s))
			}
			q := New(seeded(t, 24*time.Hour, items...), nil, nil, nil)
			assert.Equal(t, tt.wantMood, q.SentimentSummary().Mood)
		})
	}
}

func TestSentimentSummary_Counts(t *testing.T) {
	now := time.Now().UTC()
	q := New(seeded(t, 24*time.Hour,
		item("1", "stocks", now, 0.5),
		item("2", "stocks", now, 0.05), // inside the neutral band
		item("3", "stocks", now, -0.3),
		item("4", "stocks", now, 0),
	), nil, nil, nil)

	s := q.SentimentSummary()
	assert.Equal(t, 1, s.Positive)
	assert.Equal(t, 1, s.Negative)
	assert.Equal(t, 2, s.Neutral)
	assert.Equal(t, 4, s.Total)
}

func TestPriorityItems_NewestFirst(t *testing.T) {
	now := time.Now().UTC()
	a := item("a", "stocks", now.Add(-2*time.Hour), 0)
	a.Priority = true
	b := item("b", "stocks", now.Add(-time.Hour), 0)
	b.Priority = true
	c := item("c", "stocks", now, 0)
	c.Priority = true

	q := New(seeded(t, 24*time.Hour, a, b, c), nil, nil, nil)

	got := q.PriorityItems(2)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestExport_FiltersSourcesAndWindow(t *testing.T) {
	now := time.Now().UTC()
	agg := seeded(t, 24*time.Hour,
		item("1", "stocks", now.Add(-30*time.Minute), 0, "AAPL"),
		item("2", "investing", now.Add(-30*time.Minute), 0),
		item("3", "stocks", now.Add(-10*time.Hour), 0),
	)
	q := New(agg, nil, nil, nil)
	q.now = func() time.Time { return now }

	res := q.Export([]string{"stocks"}, 1)
	assert.Equal(t, 1, res.Meta.TotalItems)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "1", res.Items[0].ID)
	assert.Equal(t, 1, res.Meta.WindowHours)
	assert.Equal(t, now, res.Meta.WindowEnd)

	// No filters returns the whole window, newest first.
	all := q.Export(nil, 0)
	require.Len(t, all.Items, 3)
	assert.Equal(t, 24, all.Meta.WindowHours)
	assert.True(t, all.Items[0].CreatedUTC.After(all.Items[2].CreatedUTC))
}

func TestAlertCheck_MentionRule(t *testing.T) {
	now := time.Now().UTC()
	agg := seeded(t, 24*time.Hour,
		item("1", "stocks", now.Add(-5*time.Minute), 0, "GME"),
		item("2", "stocks", now.Add(-4*time.Minute), 0, "GME"),
		item("3", "stocks", now.Add(-3*time.Minute), 0, "GME"),
		item("4", "stocks", now.Add(-2*time.Hour), 0, "GME"), // outside rule window
		item("5", "stocks", now.Add(-1*time.Minute), 0, "AAPL"),
	)

	rules := []config.AlertRule{
		{Name: "surge", MinMentions: 3, Window: time.Hour},
	}
	q := New(agg, nil, rules, nil)
	q.now = func() time.Time { return now }

	alerts := q.AlertCheck()
	require.Len(t, alerts, 1)
	assert.Equal(t, "surge", alerts[0].Rule)
	assert.Equal(t, "GME", alerts[0].Ticker)
	assert.Equal(t, 3, alerts[0].Mentions)

	// Idempotent: the still-active alert is re-reported.
	again := q.AlertCheck()
	require.Len(t, again, 1)
	assert.Equal(t, alerts[0].Ticker, again[0].Ticker)
}

func TestAlertCheck_SpeculativeRatioRule(t *testing.T) {
	now := time.Now().UTC()
	spec := item("1", "wallstreetbets", now, 0)
	spec.Speculative = true
	sober := item("2", "investing", now, 0)

	rules := []config.AlertRule{
		{Name: "froth", SpeculativeRatio: 0.5},
	}
	q := New(seeded(t, 24*time.Hour, spec, sober), nil, rules, nil)

	alerts := q.AlertCheck()
	require.Len(t, alerts, 1)
	assert.Equal(t, "wallstreetbets", alerts[0].Source)
	assert.Equal(t, 1.0, alerts[0].Ratio)
}

func TestAlertCheck_TickerScopedRule(t *testing.T) {
	now := time.Now().UTC()
	agg := seeded(t, 24*time.Hour,
		item("1", "stocks", now, 0, "GME", "AAPL"),
		item("2", "stocks", now, 0, "AAPL"),
	)
	rules := []config.AlertRule{
		{Name: "aapl-watch", Ticker: "AAPL", MinMentions: 2, Window: time.Hour},
	}
	q := New(agg, nil, rules, nil)

	alerts := q.AlertCheck()
	require.Len(t, alerts, 1)
	assert.Equal(t, "AAPL", alerts[0].Ticker)
}

func TestStatus_WithoutMonitor(t *testing.T) {
	q := New(seeded(t, 24*time.Hour), nil, nil, nil)
	state := q.Status()
	assert.False(t, state.Active)
	assert.NotNil(t, state.Sources)
}

func TestActivitySummary(t *testing.T) {
	now := time.Now().UTC()
	spec := item("1", "wallstreetbets", now.Add(-2*time.Hour), 0.5, "GME")
	spec.Speculative = true

	q := New(seeded(t, 24*time.Hour,
		spec,
		item("2", "stocks", now.Add(-time.Hour), 0, "AAPL"),
		item("3", "stocks", now.Add(-30*time.Minute), 0, "GME"),
	), nil, nil, nil)
	q.now = func() time.Time { return now }

	a := q.ActivitySummary()
	assert.Equal(t, 3, a.TotalItems)
	assert.Equal(t, 1, a.SpeculativeItems)
	assert.InDelta(t, 1.0/3.0, a.SpeculativeRatio, 1e-9)
	assert.Equal(t, 2, a.ActiveSources)
	assert.Equal(t, 2, a.UniqueTickers)
	// Oldest collection is two hours back: 3 items / 2h.
	assert.InDelta(t, 1.5, a.ItemsPerHour, 1e-9)
}

func TestActivitySummary_Empty(t *testing.T) {
	q := New(seeded(t, 24*time.Hour), nil, nil, nil)

	a := q.ActivitySummary()
	assert.Zero(t, a.TotalItems)
	assert.Zero(t, a.ItemsPerHour)
	assert.Zero(t, a.SpeculativeRatio)
}
