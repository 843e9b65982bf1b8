package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reddwatch/reddwatch/internal/model"
	"github.com/reddwatch/reddwatch/internal/telemetry"
)

// Aggregator maintains the rolling windowed state shared by all
// polling tasks. All mutation happens under a single mutex; readers
// get deep-copied snapshots so a query never sees a half-applied
// ingest.
type Aggregator struct {
	mu sync.Mutex

	window   time.Duration
	items    []model.ProcessedItem
	oldest   time.Time // earliest CreatedUTC in items; zero when empty
	tickers  map[string]*tickerEntry
	sources  map[string]*sourceEntry
	priority *ring

	ingested uint64

	metrics *telemetry.Metrics
	now     func() time.Time
}

type tickerEntry struct {
	mentions  int
	sources   map[string]bool
	firstSeen time.Time
	lastSeen  time.Time
}

type sourceEntry struct {
	items       int
	totalScore  int
	totalCmts   int
	speculative int
}

// New creates an aggregator with the given retention window and
// priority ring capacity.
func New(window time.Duration, priorityCap int, metrics *telemetry.Metrics) *Aggregator {
	if priorityCap <= 0 {
		priorityCap = 100
	}
	return &Aggregator{
		window:   window,
		tickers:  make(map[string]*tickerEntry),
		sources:  make(map[string]*sourceEntry),
		priority: newRing(priorityCap),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Ingest folds one processed item into the live window. Malformed
// items are dropped with a warning; ingestion never fails.
func (a *Aggregator) Ingest(item model.ProcessedItem) {
	if item.ID == "" || item.Source == "" || item.CreatedUTC.IsZero() {
		log.Warn().
			Str("id", item.ID).
			Str("source", item.Source).
			Msg("rejecting malformed item")
		if a.metrics != nil {
			a.metrics.ItemsRejected.Inc()
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.evictLocked(now)

	if now.Sub(item.CreatedUTC) > a.window {
		// Already outside the window; nothing to record.
		return
	}

	a.items = append(a.items, item)
	a.ingested++
	if a.oldest.IsZero() || item.CreatedUTC.Before(a.oldest) {
		a.oldest = item.CreatedUTC
	}

	for _, sym := range item.Tickers {
		ts, ok := a.tickers[sym]
		if !ok {
			ts = &tickerEntry{sources: make(map[string]bool), firstSeen: item.CreatedUTC}
			a.tickers[sym] = ts
		}
		ts.mentions++
		ts.sources[item.Source] = true
		if item.CreatedUTC.After(ts.lastSeen) {
			ts.lastSeen = item.CreatedUTC
		}
		if item.CreatedUTC.Before(ts.firstSeen) {
			ts.firstSeen = item.CreatedUTC
		}
	}

	ss, ok := a.sources[item.Source]
	if !ok {
		ss = &sourceEntry{}
		a.sources[item.Source] = ss
	}
	ss.items++
	ss.totalScore += item.Score
	ss.totalCmts += item.Comments
	if item.Speculative {
		ss.speculative++
	}

	if item.Priority {
		a.priority.push(item)
	}

	if a.metrics != nil {
		a.metrics.ItemsIngested.WithLabelValues(item.Source).Inc()
		a.metrics.BufferSize.Set(float64(len(a.items)))
		a.metrics.UniqueTickers.Set(float64(len(a.tickers)))
	}
}

// EvictExpired removes every item strictly older than the retention
// window as of now. An item sitting exactly at the window edge stays.
func (a *Aggregator) EvictExpired(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.evictLocked(now)
}

func (a *Aggregator) evictLocked(now time.Time) int {
	cutoff := now.Add(-a.window)

	// Nothing can be expired until the oldest item crosses the
	// cutoff; skipping the scan keeps ingest amortized O(1) under the
	// mutex. The periodic sweep covers idle windows.
	if len(a.items) == 0 || !a.oldest.Before(cutoff) {
		return 0
	}

	kept := a.items[:0]
	evicted := 0
	var oldest time.Time
	for _, item := range a.items {
		if item.CreatedUTC.Before(cutoff) {
			evicted++
			a.retireLocked(item, cutoff)
		} else {
			if oldest.IsZero() || item.CreatedUTC.Before(oldest) {
				oldest = item.CreatedUTC
			}
			kept = append(kept, item)
		}
	}
	a.items = kept
	a.oldest = oldest

	if evicted > 0 && a.metrics != nil {
		a.metrics.ItemsEvicted.Add(float64(evicted))
		a.metrics.BufferSize.Set(float64(len(a.items)))
		a.metrics.UniqueTickers.Set(float64(len(a.tickers)))
	}
	return evicted
}

// retireLocked rolls an expired item back out of the derived stats so
// aggregate views never include it.
func (a *Aggregator) retireLocked(item model.ProcessedItem, cutoff time.Time) {
	for _, sym := range item.Tickers {
		ts, ok := a.tickers[sym]
		if !ok {
			continue
		}
		ts.mentions--
		if ts.mentions <= 0 {
			delete(a.tickers, sym)
			continue
		}
		// The surviving mentions are all inside the window; clamp
		// rather than scan them for the exact earliest.
		if ts.firstSeen.Before(cutoff) {
			ts.firstSeen = cutoff
		}
	}
	if ss, ok := a.sources[item.Source]; ok {
		ss.items--
		ss.totalScore -= item.Score
		ss.totalCmts -= item.Comments
		if item.Speculative {
			ss.speculative--
		}
		if ss.items <= 0 {
			delete(a.sources, item.Source)
		}
	}
	a.priority.drop(item.ID)
}

// Snapshot is an immutable copy of the aggregate state.
type Snapshot struct {
	TakenAt  time.Time
	Window   time.Duration
	Items    []model.ProcessedItem
	Tickers  map[string]model.TickerStat
	Sources  map[string]model.SourceStat
	Priority []model.ProcessedItem // newest first
	Ingested uint64
}

// Snapshot deep-copies the current state. The copy is detached from
// the aggregator; callers may hold it as long as they like.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		TakenAt:  a.now().UTC(),
		Window:   a.window,
		Items:    make([]model.ProcessedItem, len(a.items)),
		Tickers:  make(map[string]model.TickerStat, len(a.tickers)),
		Sources:  make(map[string]model.SourceStat, len(a.sources)),
		Priority: a.priority.newestFirst(),
		Ingested: a.ingested,
	}
	copy(snap.Items, a.items)

	for sym, ts := range a.tickers {
		srcs := make([]string, 0, len(ts.sources))
		for s := range ts.sources {
			srcs = append(srcs, s)
		}
		sort.Strings(srcs)
		snap.Tickers[sym] = model.TickerStat{
			Symbol:    sym,
			Mentions:  ts.mentions,
			Sources:   srcs,
			FirstSeen: ts.firstSeen,
			LastSeen:  ts.lastSeen,
		}
	}
	for name, ss := range a.sources {
		stat := model.SourceStat{Source: name, Items: ss.items}
		if ss.items > 0 {
			stat.AvgScore = float64(ss.totalScore) / float64(ss.items)
			stat.AvgComments = float64(ss.totalCmts) / float64(ss.items)
			stat.SpeculativeRatio = float64(ss.speculative) / float64(ss.items)
		}
		snap.Sources[name] = stat
	}
	return snap
}

// IngestedTotal reports how many items have ever been accepted,
// including items since evicted.
func (a *Aggregator) IngestedTotal() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ingested
}
