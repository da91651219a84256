package scoring

import (
	"context"

	"stockscore/types"
)

// QuoteProvider returns the latest quote for a symbol. It fails with
// types.ErrNotFound or types.ErrUnavailable.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (types.CompanyMetrics, error)
}

// DCFProvider returns a discounted-cash-flow fair value per share.
type DCFProvider interface {
	DCF(ctx context.Context, symbol string) (float64, error)
}

// NewsProvider returns articles about a company, most recent first.
type NewsProvider interface {
	News(ctx context.Context, company string) ([]types.NewsArticle, error)
}

// SentimentAnalyzer scores text with respect to an entity. Only the last
// row of the result is used.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text, entity string) ([]types.SentimentResult, error)
}

// Explainer turns a score breakdown into prose. Calls are expensive and not
// idempotent; the pipeline makes at most one per ready score.
type Explainer interface {
	Explain(ctx context.Context, in ExplanationContext) (string, error)
}
