package query

import (
	"sort"
	"time"

	"github.com/reddwatch/reddwatch/internal/aggregate"
	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/model"
	"github.com/reddwatch/reddwatch/internal/telemetry"
)

// neutralBand is the sentiment magnitude below which an individual
// item counts as neutral in the summary breakdown.
const neutralBand = 0.1

// Snapshotter is the aggregator surface the query layer reads from.
type Snapshotter interface {
	Snapshot() aggregate.Snapshot
}

// Stater exposes the monitor's lifecycle state.
type Stater interface {
	State() model.MonitorState
}

// Query is the read-only facade over aggregate state. Every call
// works from a snapshot, so queries never block ingestion beyond the
// snapshot copy itself.
type Query struct {
	agg     Snapshotter
	mon     Stater
	rules   []config.AlertRule
	metrics *telemetry.Metrics
	now     func() time.Time
}

// New builds the query facade. mon and metrics may be nil when no
// monitor is attached (one-shot exports).
func New(agg Snapshotter, mon Stater, rules []config.AlertRule, metrics *telemetry.Metrics) *Query {
	return &Query{agg: agg, mon: mon, rules: rules, metrics: metrics, now: time.Now}
}

// TrendingTickers returns up to limit symbols ordered by mention
// count descending, ties broken by most recent last-seen, then
// alphabetically.
func (q *Query) TrendingTickers(limit int) []model.TickerStat {
	snap := q.agg.Snapshot()

	out := make([]model.TickerStat, 0, len(snap.Tickers))
	for _, ts := range snap.Tickers {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mentions != out[j].Mentions {
			return out[i].Mentions > out[j].Mentions
		}
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Symbol < out[j].Symbol
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Mood labels for the aggregate sentiment.
const (
	MoodBullish = "bullish"
	MoodNeutral = "neutral"
	MoodBearish = "bearish"
)

// SentimentSummary aggregates sentiment across all live items.
type SentimentSummary struct {
	Mood     string  `json:"mood"`
	Average  float64 `json:"average"`
	Positive int     `json:"positive"`
	Negative int     `json:"negative"`
	Neutral  int     `json:"neutral"`
	Total    int     `json:"total"`
}

// SentimentSummary computes the aggregate mood from the mean item
// sentiment. The exact midpoint reports neutral.
func (q *Query) SentimentSummary() SentimentSummary {
	snap := q.agg.Snapshot()

	var sum float64
	s := SentimentSummary{Mood: MoodNeutral, Total: len(snap.Items)}
	for _, item := range snap.Items {
		sum += item.Sentiment
		switch {
		case item.Sentiment > neutralBand:
			s.Positive++
		case item.Sentiment < -neutralBand:
			s.Negative++
		default:
			s.Neutral++
		}
	}
	if s.Total == 0 {
		return s
	}
	s.Average = sum / float64(s.Total)
	switch {
	case s.Average > 0:
		s.Mood = MoodBullish
	case s.Average < 0:
		s.Mood = MoodBearish
	}
	return s
}

// PriorityItems returns the most recent priority items, newest first.
func (q *Query) PriorityItems(limit int) []model.ProcessedItem {
	snap := q.agg.Snapshot()
	items := snap.Priority
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ExportMeta describes a filtered export.
type ExportMeta struct {
	GeneratedAt time.Time `json:"generated_at"`
	TotalItems  int       `json:"total_items"`
	WindowHours int       `json:"window_hours"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Sources     []string  `json:"sources,omitempty"`
}

// ExportResult is the custom time-window export for downstream
// consumers.
type ExportResult struct {
	Meta  ExportMeta            `json:"metadata"`
	Items []model.ProcessedItem `json:"items"`
}

// Export filters the live buffer to the requested sources and window.
// An empty sources list matches everything; windowHours of zero means
// the full retention window.
func (q *Query) Export(sources []string, windowHours int) ExportResult {
	snap := q.agg.Snapshot()
	now := q.now().UTC()

	window := snap.Window
	if windowHours > 0 {
		window = time.Duration(windowHours) * time.Hour
	}
	cutoff := now.Add(-window)

	wanted := make(map[string]bool, len(sources))
	for _, s := range sources {
		wanted[s] = true
	}

	items := make([]model.ProcessedItem, 0)
	for _, item := range snap.Items {
		if item.CreatedUTC.Before(cutoff) {
			continue
		}
		if len(wanted) > 0 && !wanted[item.Source] {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedUTC.After(items[j].CreatedUTC)
	})

	return ExportResult{
		Meta: ExportMeta{
			GeneratedAt: now,
			TotalItems:  len(items),
			WindowHours: int(window.Hours()),
			WindowStart: cutoff,
			WindowEnd:   now,
			Sources:     sources,
		},
		Items: items,
	}
}

// ActivitySummary is the window-wide activity roll-up.
type ActivitySummary struct {
	TotalItems       int     `json:"total_items"`
	SpeculativeItems int     `json:"speculative_items"`
	SpeculativeRatio float64 `json:"speculative_ratio"`
	ItemsPerHour     float64 `json:"items_per_hour"`
	ActiveSources    int     `json:"active_sources"`
	UniqueTickers    int     `json:"unique_tickers"`
}

// ActivitySummary counts overall activity across the live window. The
// ingest rate is measured against the span since the oldest collected
// item, floored at one hour.
func (q *Query) ActivitySummary() ActivitySummary {
	snap := q.agg.Snapshot()

	out := ActivitySummary{
		TotalItems:    len(snap.Items),
		ActiveSources: len(snap.Sources),
		UniqueTickers: len(snap.Tickers),
	}
	if out.TotalItems == 0 {
		return out
	}

	oldest := snap.Items[0].CollectedAt
	for _, item := range snap.Items {
		if item.Speculative {
			out.SpeculativeItems++
		}
		if item.CollectedAt.Before(oldest) {
			oldest = item.CollectedAt
		}
	}
	out.SpeculativeRatio = float64(out.SpeculativeItems) / float64(out.TotalItems)

	span := q.now().UTC().Sub(oldest).Hours()
	if span < 1 {
		span = 1
	}
	out.ItemsPerHour = float64(out.TotalItems) / span
	return out
}

// SourceStats returns the per-source statistics for the live window.
func (q *Query) SourceStats() map[string]model.SourceStat {
	return q.agg.Snapshot().Sources
}

// Status reports the monitor's lifecycle state. Returns an inactive
// state when no monitor is attached.
func (q *Query) Status() model.MonitorState {
	if q.mon == nil {
		return model.MonitorState{Sources: map[string]model.SourceState{}}
	}
	return q.mon.State()
}
