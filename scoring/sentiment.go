package scoring

import (
	"math"
	"strings"

	"stockscore/types"
	"stockscore/utils/helpers"
)

// MaxNewsArticles is how many of the most recent articles feed the analyzer.
const MaxNewsArticles = 5

// EffectiveSentiment picks the last row of the analyzer output. An empty
// result, a missing score or a score of exactly 0 all mean "not available".
func EffectiveSentiment(results []types.SentimentResult) Reading {
	if len(results) == 0 {
		return Pending()
	}
	last := results[len(results)-1]
	if last.Score == nil {
		return Pending()
	}
	v := *last.Score
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return Pending()
	}
	return Resolved(v)
}

// BuildNewsText joins the descriptions of the first MaxNewsArticles articles
// with single spaces. Markup is stripped and blank descriptions are skipped.
func BuildNewsText(articles []types.NewsArticle) string {
	if len(articles) > MaxNewsArticles {
		articles = articles[:MaxNewsArticles]
	}
	parts := make([]string, 0, len(articles))
	for _, a := range articles {
		text := helpers.CleanHTMLText(a.Description)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
