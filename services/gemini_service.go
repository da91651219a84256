package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockscore/scoring"
	"stockscore/utils/helpers"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

var ErrMissingAPIKey = errors.New("gemini api key not set")

// contentGenerator is the part of genai.Models the explainer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExplainer asks Gemini to explain a ready score. Requests are
// throttled so a burst of tickers can't exhaust the quota.
type GeminiExplainer struct {
	models  contentGenerator
	model   string
	limiter *rate.Limiter
}

// NewGeminiExplainer builds an explainer allowing perMinute requests a minute.
// perMinute <= 0 disables throttling.
func NewGeminiExplainer(ctx context.Context, apiKey, model string, perMinute int) (*GeminiExplainer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiExplainer(client.Models, model, perMinute), nil
}

func newGeminiExplainer(models contentGenerator, model string, perMinute int) *GeminiExplainer {
	if model == "" {
		model = DefaultGeminiModel
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &GeminiExplainer{models: models, model: model, limiter: limiter}
}

// Explain makes a single generation attempt for in.
func (g *GeminiExplainer) Explain(ctx context.Context, in scoring.ExplanationContext) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("explain %s: rate limit: %w", in.Symbol, err)
	}

	prompt := BuildExplanationPrompt(in)
	zap.L().Info("Requesting score explanation", zap.String("symbol", in.Symbol), zap.String("model", g.model))

	result, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.2)),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	if result == nil {
		return "", errors.New("gemini returned no response")
	}

	text := CleanExplanation(result.Text())
	if text == "" {
		return "", errors.New("gemini returned an empty explanation")
	}
	zap.L().Debug("Score explanation received", zap.String("symbol", in.Symbol), zap.String("preview", helpers.Truncate(text, 120)))
	return text, nil
}

// explanationOrder is the order metrics appear in the prompt.
var explanationOrder = []string{"Normalized PE", "Normalized EPS", "Normalized DCF", "Sentiment Score"}

// BuildExplanationPrompt renders the score breakdown into the explanation prompt.
func BuildExplanationPrompt(in scoring.ExplanationContext) string {
	byName := make(map[string]scoring.WeightedMetric, len(in.Metrics))
	for _, m := range in.Metrics {
		byName[m.Name] = m
	}

	var metrics strings.Builder
	for _, name := range explanationOrder {
		m, ok := byName[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&metrics, "  - %s: %s (Weight: %s)\n", name, helpers.FormatFixed(m.Value, 4), helpers.FormatFixed(m.Weight, 0))
	}

	subject := in.Symbol
	if in.Company != "" && in.Company != in.Symbol {
		subject = fmt.Sprintf("%s (%s)", in.Company, in.Symbol)
	}
	sector := in.Sector
	if sector == "" {
		sector = scoring.SectorUnknown
	}

	return fmt.Sprintf(`
  You are a financial analysis assistant. Given the following normalized metrics and weights, explain how the final investment score was computed and interpret the result.

  Company: %s
  Sector: %s

  Metrics:
%s
  Final Score: %s out of %s

  Instructions:
  1. Explain how each metric contributes to the score (value × weight).
  2. Highlight which metrics had the strongest and weakest impact.
  3. Comment on whether the score reflects strong fundamentals, valuation, or sentiment.
  4. If any metric is negative or zero, explain its impact.
  5. Use clear, non-technical language suitable for investors.

  Output format:
  - Contribution Breakdown
  - Interpretation
  - Strengths & Weaknesses
  - Overall Assessment
  Give the output as bullet points that can be used directly.
  `, subject, sector, metrics.String(), helpers.FormatFixed(in.Total, 2), helpers.FormatFixed(in.NominalMax, 0))
}

// CleanExplanation strips whitespace and an outer markdown code fence.
func CleanExplanation(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") && len(cleaned) >= 6 {
		cleaned = strings.TrimPrefix(cleaned, "```markdown")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

// RenderExplanationHTML converts a markdown explanation to HTML.
func RenderExplanationHTML(markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render explanation: %w", err)
	}
	return buf.String(), nil
}
