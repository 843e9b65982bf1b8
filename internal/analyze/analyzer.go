package analyze

import (
	"regexp"
	"strings"
	"time"

	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/model"
)

var cashtagPattern = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)
var bareTokenPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// Analyzer derives tickers, sentiment and risk flags from raw items.
// It holds only immutable lookup tables and is safe for concurrent use.
type Analyzer struct {
	bullish     map[string]bool
	bearish     map[string]bool
	speculative []string
	allowlist   map[string]bool
	specSources map[string]bool

	priorityScore    int
	priorityComments int

	now func() time.Time
}

// New builds an analyzer from the configured lexicons and thresholds.
func New(cfg *config.Config) *Analyzer {
	a := &Analyzer{
		bullish:          make(map[string]bool),
		bearish:          make(map[string]bool),
		allowlist:        make(map[string]bool),
		specSources:      make(map[string]bool),
		priorityScore:    cfg.Thresholds.PriorityScore,
		priorityComments: cfg.Thresholds.PriorityComments,
		now:              time.Now,
	}
	for _, w := range cfg.Lexicons.Bullish {
		a.bullish[strings.ToLower(w)] = true
	}
	for _, w := range cfg.Lexicons.Bearish {
		a.bearish[strings.ToLower(w)] = true
	}
	for _, w := range cfg.Lexicons.Speculative {
		a.speculative = append(a.speculative, strings.ToLower(w))
	}
	for _, t := range cfg.Lexicons.Tickers {
		a.allowlist[strings.ToUpper(t)] = true
	}
	for _, s := range cfg.Sources {
		if s.Speculative {
			a.specSources[s.Name] = true
		}
	}
	return a
}

// Analyze turns a raw item into a processed item. Pure apart from the
// collection timestamp.
func (a *Analyzer) Analyze(item model.RawItem) model.ProcessedItem {
	text := item.Title + " " + item.Body
	return model.ProcessedItem{
		RawItem:     item,
		Tickers:     a.ExtractTickers(text),
		Sentiment:   a.Sentiment(text),
		Speculative: a.IsSpeculative(item),
		Priority:    item.Score > a.priorityScore && item.Comments > a.priorityComments,
		CollectedAt: a.now().UTC(),
	}
}

// ExtractTickers returns the symbols mentioned in text, uppercased,
// deduplicated, in order of first appearance. Cashtags always count;
// bare uppercase tokens only when present in the allow-list.
func (a *Analyzer) ExtractTickers(text string) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(sym string) {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}

	for _, m := range cashtagPattern.FindAllStringSubmatch(text, -1) {
		add(strings.ToUpper(m[1]))
	}
	if len(a.allowlist) > 0 {
		for _, tok := range bareTokenPattern.FindAllString(text, -1) {
			if a.allowlist[tok] {
				add(tok)
			}
		}
	}
	return out
}

// Sentiment scores text in [-1, 1] from lexicon hits. No hits scores
// exactly zero.
func (a *Analyzer) Sentiment(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var positive, negative int
	for _, w := range words {
		if a.bullish[w] {
			positive++
		}
		if a.bearish[w] {
			negative++
		}
	}
	if positive == 0 && negative == 0 {
		return 0
	}

	// Normalize against document length so one keyword in a wall of
	// text does not read as a strong signal.
	norm := float64(len(words)) / 10.0
	if norm < 1 {
		norm = 1
	}
	score := float64(positive-negative) / norm
	return clamp(score, -1, 1)
}

// IsSpeculative reports whether the item carries meme-trading signals.
// Any single condition is sufficient.
func (a *Analyzer) IsSpeculative(item model.RawItem) bool {
	if a.specSources[item.Source] {
		return true
	}
	content := strings.ToLower(item.Title + " " + item.Body)
	for _, kw := range a.speculative {
		if strings.Contains(content, kw) {
			return true
		}
	}
	// Engagement wildly out of proportion to content length is a
	// virality proxy: a near-empty post does not earn hundreds of
	// upvotes on merit.
	if len(content) < 80 && item.Score > 100 && item.Comments > 50 {
		return true
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '$'
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
