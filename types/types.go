package types

import "time"

// CompanyMetrics is the subset of a quote the scoring pipeline reads.
// Price and EPSCurrentYear are nil when the provider did not report them.
type CompanyMetrics struct {
	Symbol         string   `json:"symbol"`
	DisplayName    string   `json:"displayName,omitempty"`
	ShortName      string   `json:"shortName,omitempty"`
	LongName       string   `json:"longName,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	Exchange       string   `json:"fullExchangeName,omitempty"`
	MarketCap      float64  `json:"marketCap,omitempty"`
	Price          *float64 `json:"regularMarketPrice,omitempty"`
	EPSCurrentYear *float64 `json:"epsCurrentYear,omitempty"`
}

// Name returns the best human readable name for the company.
func (c CompanyMetrics) Name() string {
	switch {
	case c.DisplayName != "":
		return c.DisplayName
	case c.ShortName != "":
		return c.ShortName
	case c.LongName != "":
		return c.LongName
	}
	return c.Symbol
}

type NewsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Source      string `json:"source,omitempty"`
}

// SentimentResult is one row returned by the sentiment analyzer.
// Score is nil when the analyzer omitted it.
type SentimentResult struct {
	Entity string   `json:"entity"`
	Score  *float64 `json:"score"`
	Label  string   `json:"label"`
	Clause string   `json:"clause"`
}

type EventType string

const (
	ScoreSettled      EventType = "score.settled"
	ExplanationReady  EventType = "explanation.ready"
	ExplanationFailed EventType = "explanation.failed"
)

// ScoreEvent is published whenever a pipeline generation settles or an
// explanation request finishes.
type ScoreEvent struct {
	ID                string    `json:"id"`
	Type              EventType `json:"type"`
	Symbol            string    `json:"symbol"`
	Sector            string    `json:"sector"`
	Stage             string    `json:"stage"`
	NormPE            float64   `json:"normPE"`
	NormEPS           float64   `json:"normEPS"`
	NormDCF           *float64  `json:"normDCF"`
	Sentiment         *float64  `json:"sentiment"`
	Total             float64   `json:"total"`
	ExplanationStatus string    `json:"explanationStatus"`
	CreatedAt         time.Time `json:"createdAt"`
}
