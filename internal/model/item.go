package model

import "time"

// RawItem is the canonical shape of one fetched post. Everything
// downstream of the source client depends on this record, never on the
// raw API response.
type RawItem struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Category    string    `json:"category"` // listing kind: hot, new, rising
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	Score       int       `json:"score"`
	Comments    int       `json:"comments"`
	UpvoteRatio float64   `json:"upvote_ratio"`
	Flair       string    `json:"flair,omitempty"`
	Stickied    bool      `json:"stickied"`
	CreatedUTC  time.Time `json:"created_utc"`
	Permalink   string    `json:"permalink"`
}

// ProcessedItem is a RawItem plus the fields derived at ingestion time.
// It is immutable once created; the aggregator owns it after Ingest.
type ProcessedItem struct {
	RawItem

	Tickers     []string  `json:"tickers"`
	Sentiment   float64   `json:"sentiment"`
	Speculative bool      `json:"speculative"`
	Priority    bool      `json:"priority"`
	CollectedAt time.Time `json:"collected_at"`
}

// Age returns how old the item is relative to now.
func (r RawItem) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedUTC)
}

// URL reconstructs the full permalink URL for the item.
func (r RawItem) URL() string {
	if r.Permalink == "" {
		return ""
	}
	if len(r.Permalink) > 0 && r.Permalink[0] == '/' {
		return "https://www.reddit.com" + r.Permalink
	}
	return r.Permalink
}
