package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/reddwatch/reddwatch/internal/model"
	"github.com/reddwatch/reddwatch/internal/query"
)

// Document is the JSON hand-off consumed by the presentation layers.
type Document struct {
	Metadata        Metadata               `json:"metadata"`
	TrendingTickers map[string]int         `json:"trending_tickers"`
	SourceStats     map[string]model.SourceStat `json:"source_stats"`
	PriorityItems   []PriorityItem         `json:"priority_items"`
	Sentiment       Sentiment              `json:"sentiment"`
	Activity        query.ActivitySummary  `json:"activity_summary"`
}

// Metadata describes when and over what window the document was built.
type Metadata struct {
	GeneratedAt  time.Time `json:"generated_at"`
	GenerationID string    `json:"generation_id"`
	TotalItems   int       `json:"total_items"`
	WindowHours  int       `json:"window_hours"`
}

// PriorityItem is the flattened view of one priority item.
type PriorityItem struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Score     int       `json:"score"`
	Comments  int       `json:"comments"`
	Sentiment float64   `json:"sentiment"`
	Tickers   []string  `json:"tickers"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentiment is the aggregate mood block.
type Sentiment struct {
	Mood     string `json:"mood"`
	Positive int    `json:"positive"`
	Negative int    `json:"negative"`
	Neutral  int    `json:"neutral"`
}

// trendingLimit caps how many symbols a document carries.
const trendingLimit = 20

// priorityLimit caps how many priority items a document carries.
const priorityLimit = 50

// Build assembles a document from the query facade.
func Build(q *query.Query) Document {
	res := q.Export(nil, 0)
	summary := q.SentimentSummary()

	tickers := make(map[string]int)
	for _, ts := range q.TrendingTickers(trendingLimit) {
		tickers[ts.Symbol] = ts.Mentions
	}

	priority := make([]PriorityItem, 0, priorityLimit)
	for _, item := range q.PriorityItems(priorityLimit) {
		priority = append(priority, PriorityItem{
			Source:    item.Source,
			Title:     item.Title,
			Score:     item.Score,
			Comments:  item.Comments,
			Sentiment: item.Sentiment,
			Tickers:   item.Tickers,
			URL:       item.URL(),
			CreatedAt: item.CreatedUTC,
		})
	}

	return Document{
		Metadata: Metadata{
			GeneratedAt:  res.Meta.GeneratedAt,
			GenerationID: uuid.NewString(),
			TotalItems:   res.Meta.TotalItems,
			WindowHours:  res.Meta.WindowHours,
		},
		TrendingTickers: tickers,
		SourceStats:     q.SourceStats(),
		PriorityItems:   priority,
		Sentiment: Sentiment{
			Mood:     summary.Mood,
			Positive: summary.Positive,
			Negative: summary.Negative,
			Neutral:  summary.Neutral,
		},
		Activity: q.ActivitySummary(),
	}
}
