package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reddwatch/reddwatch/internal/aggregate"
	"github.com/reddwatch/reddwatch/internal/analyze"
	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/model"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/internal/telemetry"
)

// Fetcher is the source-client surface the monitor depends on.
type Fetcher interface {
	Fetch(ctx context.Context, source, category string, limit int) ([]model.RawItem, error)
}

// ExportFunc is invoked on the export schedule while the monitor runs.
type ExportFunc func(ctx context.Context) error

// Monitor orchestrates one polling goroutine per configured source,
// feeding fetched items through the analyzer into the aggregator.
// Lifecycle is Stopped -> Running -> Stopped; Start and Stop are safe
// to call from any goroutine.
type Monitor struct {
	cfg      *config.Config
	fetcher  Fetcher
	analyzer *analyze.Analyzer
	agg      *aggregate.Aggregator
	metrics  *telemetry.Metrics
	exportFn ExportFunc

	mu      sync.Mutex
	running bool
	since   time.Time
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	states  map[string]*model.SourceState

	seenMu sync.Mutex
	seen   map[string]time.Time
}

// New assembles a monitor. exportFn may be nil when periodic exports
// are not wanted.
func New(cfg *config.Config, fetcher Fetcher, analyzer *analyze.Analyzer, agg *aggregate.Aggregator, metrics *telemetry.Metrics, exportFn ExportFunc) *Monitor {
	return &Monitor{
		cfg:      cfg,
		fetcher:  fetcher,
		analyzer: analyzer,
		agg:      agg,
		metrics:  metrics,
		exportFn: exportFn,
		states:   make(map[string]*model.SourceState),
		seen:     make(map[string]time.Time),
	}
}

// Start launches the polling tasks. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	// stopCh signals a cooperative stop: current iterations finish,
	// no new fetch cycle begins. The context is only cancelled when
	// the shutdown timeout expires, forcibly abandoning hung fetches.
	runCtx, cancel := context.WithCancel(ctx)
	m.stopCh = make(chan struct{})
	m.cancel = cancel
	m.running = true
	m.since = time.Now().UTC()

	for _, src := range m.cfg.Sources {
		m.states[src.Name] = &model.SourceState{Source: src.Name, Status: model.SourceOK}
		m.wg.Add(1)
		go m.pollSource(runCtx, m.stopCh, src)
	}

	m.wg.Add(1)
	go m.sweepLoop(m.stopCh)

	if m.exportFn != nil {
		m.wg.Add(1)
		go m.exportLoop(runCtx, m.stopCh)
	}

	if m.metrics != nil {
		m.metrics.ActiveSources.Set(float64(len(m.cfg.Sources)))
	}
	log.Info().Int("sources", len(m.cfg.Sources)).Msg("monitor started")
}

// Stop signals every task to finish its current iteration and waits,
// bounded by the shutdown timeout, for them to exit. After Stop
// returns no further ingest happens; tasks that missed the deadline
// are marked stopped-with-error.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	stopCh := m.stopCh
	m.mu.Unlock()

	close(stopCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("monitor stopped")
	case <-time.After(m.cfg.Defaults.ShutdownTimeout):
		// Hard shutdown: abort whatever is still in flight and mark
		// the stragglers.
		cancel()
		m.mu.Lock()
		for _, st := range m.states {
			if st.Status != model.SourceStopped && st.Status != model.SourceAuthFailed {
				st.Status = model.SourceStoppedWithError
			}
		}
		m.mu.Unlock()
		log.Error().
			Dur("timeout", m.cfg.Defaults.ShutdownTimeout).
			Msg("monitor stop timed out, abandoning hung tasks")
	}
	cancel()

	if m.metrics != nil {
		m.metrics.ActiveSources.Set(0)
	}
}

// State returns a copy of the monitor's current state.
func (m *Monitor) State() model.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := model.MonitorState{
		Active:  m.running,
		Since:   m.since,
		Sources: make(map[string]model.SourceState, len(m.states)),
	}
	for name, st := range m.states {
		out.Sources[name] = *st
	}
	return out
}

// pollSource is the per-source state machine: Idle -> Fetching ->
// (Backoff) -> Idle. Failures here never touch other sources.
func (m *Monitor) pollSource(ctx context.Context, stop <-chan struct{}, src config.SourceConfig) {
	defer m.wg.Done()

	logger := log.With().Str("source", src.Name).Str("category", src.Category).Logger()
	logger.Info().Dur("interval", src.Interval).Msg("polling task started")

	for {
		wait := m.pollOnce(ctx, stop, src)

		select {
		case <-stop:
			m.markStopped(src.Name)
			logger.Debug().Msg("polling task exiting")
			return
		case <-time.After(wait):
		}
	}
}

// pollOnce runs one fetch cycle and returns how long to sleep before
// the next one.
func (m *Monitor) pollOnce(ctx context.Context, stop <-chan struct{}, src config.SourceConfig) time.Duration {
	logger := log.With().Str("source", src.Name).Logger()

	items, err := m.fetcher.Fetch(ctx, src.Name, src.Category, src.Limit)

	// A stop issued while the fetch was in flight: let the result go
	// so nothing is ingested after Stop returns.
	select {
	case <-stop:
		return src.Interval
	default:
	}
	if ctx.Err() != nil {
		return src.Interval
	}

	m.mu.Lock()
	st := m.states[src.Name]
	st.LastPoll = time.Now().UTC()
	m.mu.Unlock()

	switch {
	case err == nil:
		m.setStatus(src.Name, model.SourceOK)
		m.resetErrors(src.Name)
		m.ingest(items)
		return src.Interval

	case reddit.IsAuthError(err):
		// Fatal for this source until reconfigured; other sources
		// keep polling.
		m.setStatus(src.Name, model.SourceAuthFailed)
		m.bumpErrors(src.Name)
		logger.Error().Err(err).Msg("authentication failed, pausing source")
		return 24 * time.Hour

	default:
		if delay, ok := reddit.IsRateLimited(err); ok {
			m.setStatus(src.Name, model.SourceBackoff)
			m.bumpErrors(src.Name)
			logger.Warn().Dur("retry_after", delay).Msg("rate limited, backing off")
			return delay
		}
		// Transient exhaustion: skip this cycle and stretch the
		// interval with the consecutive-error count.
		errs := m.bumpErrors(src.Name)
		m.setStatus(src.Name, model.SourceBackoff)
		extended := src.Interval * time.Duration(1+min(errs, 5))
		logger.Warn().Err(err).Int("consecutive_errors", errs).
			Dur("next_poll", extended).Msg("fetch failed, skipping cycle")
		return extended
	}
}

// ingest analyzes and forwards new items, deduplicating across polls
// so an item seen in consecutive listings counts once.
func (m *Monitor) ingest(items []model.RawItem) {
	maxAge := m.cfg.Window()
	now := time.Now()

	for _, raw := range items {
		if raw.Age(now) > maxAge {
			continue
		}
		if raw.Score < m.cfg.Thresholds.MinScore || raw.Comments < m.cfg.Thresholds.MinComments {
			continue
		}
		if !m.markSeen(raw.ID, now) {
			continue
		}

		processed := m.analyzer.Analyze(raw)
		m.agg.Ingest(processed)

		if processed.Priority {
			log.Info().
				Str("source", processed.Source).
				Str("title", truncate(processed.Title, 80)).
				Int("score", processed.Score).
				Int("comments", processed.Comments).
				Msg("priority item")
		}
	}
}

// markSeen records the item ID, returning false when it was already
// ingested this window.
func (m *Monitor) markSeen(id string, now time.Time) bool {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	if _, ok := m.seen[id]; ok {
		return false
	}
	m.seen[id] = now
	return true
}

// sweepLoop periodically evicts expired items and prunes the seen set.
// Lazy eviction on ingest already maintains the invariant; the sweep
// keeps idle windows fresh too.
func (m *Monitor) sweepLoop(stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Defaults.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := time.Now()
			evicted := m.agg.EvictExpired(now)
			if evicted > 0 {
				log.Debug().Int("evicted", evicted).Msg("sweep evicted expired items")
			}

			cutoff := now.Add(-m.cfg.Window())
			m.seenMu.Lock()
			for id, seenAt := range m.seen {
				if seenAt.Before(cutoff) {
					delete(m.seen, id)
				}
			}
			m.seenMu.Unlock()
		}
	}
}

func (m *Monitor) exportLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Export.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.exportFn(ctx); err != nil {
				log.Error().Err(err).Msg("periodic export failed")
			}
		}
	}
}

// markStopped records a clean exit. Error states already recorded for
// the source (auth failure, timed-out shutdown) stay observable.
func (m *Monitor) markStopped(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[source]
	if !ok {
		return
	}
	switch st.Status {
	case model.SourceAuthFailed, model.SourceStoppedWithError:
		return
	}
	st.Status = model.SourceStopped
}

func (m *Monitor) setStatus(source string, status model.SourceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[source]; ok {
		st.Status = status
	}
}

func (m *Monitor) bumpErrors(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[source]; ok {
		st.ErrorCount++
		return st.ErrorCount
	}
	return 0
}

func (m *Monitor) resetErrors(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[source]; ok {
		st.ErrorCount = 0
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
