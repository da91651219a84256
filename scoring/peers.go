package scoring

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"stockscore/types"

	"go.uber.org/zap"
)

// PeerStats summarises the valid peers of a sector. The zero value is the
// "no signal" sentinel: both ranges are 0, so normalization yields 0.
type PeerStats struct {
	MinEPS     float64 `json:"minEPS"`
	MaxEPS     float64 `json:"maxEPS"`
	MinPE      float64 `json:"minPE"`
	MaxPE      float64 `json:"maxPE"`
	MedianPE   float64 `json:"medianPE"`
	ValidPeers int     `json:"validPeers"`
}

func (s PeerStats) EPSRange() float64 { return s.MaxEPS - s.MinEPS }

func (s PeerStats) PERange() float64 { return s.MaxPE - s.MinPE }

// PeerSample is one peer that passed validation.
type PeerSample struct {
	Symbol string
	EPS    float64
	PE     float64
}

// SampleFromQuote validates a peer quote. A peer counts only when both price
// and EPS are present and EPS is non-zero.
func SampleFromQuote(m types.CompanyMetrics) (PeerSample, bool) {
	if m.Price == nil || m.EPSCurrentYear == nil {
		return PeerSample{}, false
	}
	price, eps := *m.Price, *m.EPSCurrentYear
	if eps == 0 || math.IsNaN(eps) || math.IsNaN(price) || math.IsInf(eps, 0) || math.IsInf(price, 0) {
		return PeerSample{}, false
	}
	return PeerSample{Symbol: m.Symbol, EPS: eps, PE: price / eps}, true
}

// Median of an ascending slice. Even counts average the two middle values.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// ReducePeerStats folds samples into PeerStats. The result does not depend
// on sample order.
func ReducePeerStats(samples []PeerSample) PeerStats {
	if len(samples) == 0 {
		return PeerStats{}
	}

	pes := make([]float64, 0, len(samples))
	stats := PeerStats{
		MinEPS: math.Inf(1), MaxEPS: math.Inf(-1),
		MinPE: math.Inf(1), MaxPE: math.Inf(-1),
		ValidPeers: len(samples),
	}
	for _, s := range samples {
		pes = append(pes, s.PE)
		stats.MinEPS = math.Min(stats.MinEPS, s.EPS)
		stats.MaxEPS = math.Max(stats.MaxEPS, s.EPS)
		stats.MinPE = math.Min(stats.MinPE, s.PE)
		stats.MaxPE = math.Max(stats.MaxPE, s.PE)
	}
	sort.Float64s(pes)
	stats.MedianPE = Median(pes)
	return stats
}

// PeerStatsAggregator fetches every peer quote in parallel and reduces the
// valid ones. A failing peer is dropped, never fatal.
type PeerStatsAggregator struct {
	Quotes  QuoteProvider
	Timeout time.Duration
}

func NewPeerStatsAggregator(quotes QuoteProvider, timeout time.Duration) *PeerStatsAggregator {
	return &PeerStatsAggregator{Quotes: quotes, Timeout: timeout}
}

// Compute returns once every peer request has settled.
func (a *PeerStatsAggregator) Compute(ctx context.Context, group PeerGroup) PeerStats {
	if group.IsEmpty() || a.Quotes == nil {
		return PeerStats{}
	}

	// one slot per peer so fan-in order can't affect the result
	samples := make([]PeerSample, len(group.Symbols))
	valid := make([]bool, len(group.Symbols))

	var wg sync.WaitGroup
	for i, symbol := range group.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			samples[i], valid[i] = a.fetch(ctx, symbol)
		}(i, symbol)
	}
	wg.Wait()

	kept := make([]PeerSample, 0, len(samples))
	for i, s := range samples {
		if valid[i] {
			kept = append(kept, s)
		}
	}
	stats := ReducePeerStats(kept)
	zap.L().Info("Peer stats computed",
		zap.String("sector", group.Sector),
		zap.Int("peers", len(group.Symbols)),
		zap.Int("valid", stats.ValidPeers),
		zap.Float64("medianPE", stats.MedianPE))
	return stats
}

func (a *PeerStatsAggregator) fetch(ctx context.Context, symbol string) (PeerSample, bool) {
	callCtx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()

	quote, err := a.Quotes.Quote(callCtx, symbol)
	if err != nil {
		zap.L().Warn("Skipping peer, quote failed", zap.String("symbol", symbol), zap.Error(err))
		return PeerSample{}, false
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	sample, ok := SampleFromQuote(quote)
	if !ok {
		zap.L().Warn("Skipping peer, missing price or eps", zap.String("symbol", symbol))
	}
	return sample, ok
}

// DefaultTimeout bounds a collaborator call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
