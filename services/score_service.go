package services

import (
	"context"
	"errors"
	"fmt"

	"stockscore/clients/http_client"
	"stockscore/config"
	"stockscore/scoring"
	"stockscore/types"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// ScoreReport is a pipeline snapshot as served over HTTP.
type ScoreReport struct {
	scoring.PipelineState
	Breakdown       []scoring.WeightedMetric `json:"breakdown"`
	ExplanationHTML string                   `json:"explanationHtml,omitempty"`
	Settled         bool                     `json:"settled"`
}

func NewScoreReport(state scoring.PipelineState, settled bool) ScoreReport {
	html, err := RenderExplanationHTML(state.Explanation)
	if err != nil {
		zap.L().Warn("Failed to render explanation", zap.String("ticker", state.Ticker), zap.Error(err))
	}
	return ScoreReport{
		PipelineState:   state,
		Breakdown:       state.Score.Breakdown(),
		ExplanationHTML: html,
		Settled:         settled,
	}
}

type ScoreServiceI interface {
	Score(sentryCtx context.Context, symbol string) (ScoreReport, error)
	Stream(sentryCtx context.Context, symbol string, emit func(ScoreReport) error) error
	Quote(ctx context.Context, symbol string) (types.CompanyMetrics, error)
	DCF(ctx context.Context, symbol string) (float64, error)
	News(ctx context.Context, company string) ([]types.NewsArticle, error)
	Sectors() scoring.SectorTable
}

type scoreService struct {
	pipeline *scoring.Pipeline
}

func NewScoreService(pipeline *scoring.Pipeline) ScoreServiceI {
	return &scoreService{pipeline: pipeline}
}

// NewPipeline wires the upstream clients, the explainer and the event hooks
// into a scoring pipeline.
func NewPipeline(cfg *config.Config, resolver *scoring.SectorResolver, explainer scoring.Explainer, events *EventService) *scoring.Pipeline {
	client := http_client.NewHTTPClient(cfg.Upstream.Timeout)
	quotes := http_client.NewQuoteClient(cfg.Upstream.QuoteURL, client)

	p := &scoring.Pipeline{
		Resolver:       resolver,
		Peers:          scoring.NewPeerStatsAggregator(quotes, cfg.Upstream.Timeout),
		Quotes:         quotes,
		DCF:            http_client.NewDCFClient(cfg.Upstream.DCFURL, cfg.Upstream.DCFAPIKey, client),
		News:           http_client.NewNewsClient(cfg.Upstream.NewsURL, cfg.Upstream.NewsAPIKey, cfg.Upstream.NewsLookbackDays, client),
		Sentiment:      http_client.NewSentimentClient(cfg.Upstream.SentimentURL, client),
		Explainer:      explainer,
		Timeout:        cfg.Upstream.Timeout,
		ExplainTimeout: cfg.Explainer.Timeout,
	}
	if events != nil {
		p.OnSettle = events.ScoreSettled
		p.OnExplanation = events.ExplanationFinished
	}
	return p
}

func (s *scoreService) Score(sentryCtx context.Context, symbol string) (ScoreReport, error) {
	defer sentry.Recover()
	span := sentry.StartSpan(sentryCtx, "[Service] Score")
	defer span.Finish()
	span.SetTag("symbol", symbol)

	state, err := s.pipeline.Score(span.Context(), symbol)
	if err != nil {
		span.Status = sentry.SpanStatusDeadlineExceeded
		zap.L().Warn("Score did not settle", zap.String("symbol", symbol), zap.Error(err))
		return NewScoreReport(state, false), fmt.Errorf("score %s: %w", symbol, err)
	}

	zap.L().Info("Score settled",
		zap.String("symbol", state.Ticker),
		zap.String("sector", state.Peers.Sector),
		zap.Stringer("stage", state.Stage),
		zap.Float64("total", state.Score.Total))
	return NewScoreReport(state, true), nil
}

// Stream emits every state change for symbol and finally the settled state.
// It stops early when emit fails or ctx ends.
func (s *scoreService) Stream(sentryCtx context.Context, symbol string, emit func(ScoreReport) error) error {
	defer sentry.Recover()
	span := sentry.StartSpan(sentryCtx, "[Service] Stream")
	defer span.Finish()
	span.SetTag("symbol", symbol)

	ctx := span.Context()
	session := s.pipeline.NewSession(ctx)
	defer session.Close()

	updates, stop := session.Subscribe()
	defer stop()

	gen := session.Select(symbol)

	type result struct {
		state scoring.PipelineState
		err   error
	}
	settled := make(chan result, 1)
	go func() {
		state, err := session.Wait(ctx)
		settled <- result{state, err}
	}()

	for {
		select {
		case state, ok := <-updates:
			if !ok {
				return scoring.ErrSessionClosed
			}
			if state.Generation != gen {
				continue
			}
			if err := emit(NewScoreReport(state, false)); err != nil {
				return err
			}
		case r := <-settled:
			if r.err != nil {
				return fmt.Errorf("stream %s: %w", symbol, r.err)
			}
			return emit(NewScoreReport(r.state, true))
		}
	}
}

func (s *scoreService) Quote(ctx context.Context, symbol string) (types.CompanyMetrics, error) {
	q, err := s.pipeline.Quotes.Quote(ctx, scoring.NormalizeTicker(symbol))
	captureUnexpected(err)
	return q, err
}

func (s *scoreService) DCF(ctx context.Context, symbol string) (float64, error) {
	v, err := s.pipeline.DCF.DCF(ctx, scoring.NormalizeTicker(symbol))
	captureUnexpected(err)
	return v, err
}

func (s *scoreService) News(ctx context.Context, company string) ([]types.NewsArticle, error) {
	articles, err := s.pipeline.News.News(ctx, company)
	captureUnexpected(err)
	return articles, err
}

func (s *scoreService) Sectors() scoring.SectorTable {
	if s.pipeline.Resolver == nil {
		return scoring.SectorTable{}
	}
	return s.pipeline.Resolver.Table()
}

// captureUnexpected reports errors other than a plain miss to sentry.
func captureUnexpected(err error) {
	if err == nil || errors.Is(err, types.ErrNotFound) || errors.Is(err, context.Canceled) {
		return
	}
	sentry.CaptureException(err)
}
