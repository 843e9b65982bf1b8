package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/reddwatch/reddwatch/internal/aggregate"
	"github.com/reddwatch/reddwatch/internal/config"
)

// Alert is one triggered rule. Repeated AlertCheck calls re-report
// still-active alerts; deduplicating notifications is the caller's
// job.
type Alert struct {
	Rule        string    `json:"rule"`
	Ticker      string    `json:"ticker,omitempty"`
	Source      string    `json:"source,omitempty"`
	Mentions    int       `json:"mentions,omitempty"`
	Ratio       float64   `json:"ratio,omitempty"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// AlertCheck evaluates every configured rule against current
// aggregate state and returns the triggered ones.
func (q *Query) AlertCheck() []Alert {
	snap := q.agg.Snapshot()
	now := q.now().UTC()

	var alerts []Alert
	for _, rule := range q.rules {
		if rule.MinMentions > 0 {
			alerts = append(alerts, checkMentions(rule, snap, now)...)
		}
		if rule.SpeculativeRatio > 0 {
			for name, stat := range snap.Sources {
				if rule.Source != "" && rule.Source != name {
					continue
				}
				if stat.SpeculativeRatio >= rule.SpeculativeRatio {
					alerts = append(alerts, Alert{
						Rule:   rule.Name,
						Source: name,
						Ratio:  stat.SpeculativeRatio,
						Message: fmt.Sprintf("source %s speculative ratio %.2f exceeds %.2f",
							name, stat.SpeculativeRatio, rule.SpeculativeRatio),
						TriggeredAt: now,
					})
				}
			}
		}
	}
	if q.metrics != nil {
		for _, a := range alerts {
			q.metrics.AlertsFired.WithLabelValues(a.Rule).Inc()
		}
	}
	return alerts
}

// checkMentions counts per-symbol mentions inside the rule's window.
func checkMentions(rule config.AlertRule, snap aggregate.Snapshot, now time.Time) []Alert {
	cutoff := now.Add(-rule.Window)

	counts := make(map[string]int)
	for _, item := range snap.Items {
		if item.CreatedUTC.Before(cutoff) {
			continue
		}
		for _, sym := range item.Tickers {
			if rule.Ticker != "" && rule.Ticker != sym {
				continue
			}
			counts[sym]++
		}
	}

	var alerts []Alert
	for sym, n := range counts {
		if n >= rule.MinMentions {
			alerts = append(alerts, Alert{
				Rule:     rule.Name,
				Ticker:   sym,
				Mentions: n,
				Message: fmt.Sprintf("%s mentioned %d times in the last %s",
					sym, n, rule.Window),
				TriggeredAt: now,
			})
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Ticker < alerts[j].Ticker })
	return alerts
}
