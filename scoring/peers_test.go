package scoring

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"stockscore/types"
)

func TestMedian_Fixtures(t *testing.T) {
	cases := []struct {
		in       []float64
		expected float64
	}{
		{[]float64{12}, 12},
		{[]float64{10, 30}, 20},
		{[]float64{10, 20, 30}, 20},
		{[]float64{10, 15, 25, 40}, 20},
		{nil, 0},
	}
	for _, c := range cases {
		if got := Median(c.in); got != c.expected {
			t.Errorf("Median(%v): expected %v, got %v", c.in, c.expected, got)
		}
	}
}

func TestSampleFromQuote_Validation(t *testing.T) {
	price, eps, zero := 50.0, 5.0, 0.0
	cases := []struct {
		name  string
		quote types.CompanyMetrics
		valid bool
	}{
		{"valid", types.CompanyMetrics{Price: &price, EPSCurrentYear: &eps}, true},
		{"zero eps", types.CompanyMetrics{Price: &price, EPSCurrentYear: &zero}, false},
		{"missing price", types.CompanyMetrics{EPSCurrentYear: &eps}, false},
		{"missing eps", types.CompanyMetrics{Price: &price}, false},
	}
	for _, c := range cases {
		s, ok := SampleFromQuote(c.quote)
		if ok != c.valid {
			t.Errorf("%s: expected valid=%v, got %v", c.name, c.valid, ok)
		}
		if ok && s.PE != 10 {
			t.Errorf("%s: expected PE 10, got %v", c.name, s.PE)
		}
	}
}

func TestReducePeerStats_Empty(t *testing.T) {
	if got := ReducePeerStats(nil); got != (PeerStats{}) {
		t.Errorf("Expected zero stats, got %+v", got)
	}
}

func TestReducePeerStats_NegativeEPS(t *testing.T) {
	stats := ReducePeerStats([]PeerSample{
		{Symbol: "A", EPS: -2, PE: -10},
		{Symbol: "B", EPS: -1, PE: -40},
	})
	if stats.MaxEPS != -1 || stats.MinEPS != -2 {
		t.Errorf("Expected EPS range [-2,-1], got [%v,%v]", stats.MinEPS, stats.MaxEPS)
	}
	if stats.MaxPE != -10 || stats.MinPE != -40 || stats.MedianPE != -25 {
		t.Errorf("Unexpected PE stats %+v", stats)
	}
}

func TestCompute_WorkedExample(t *testing.T) {
	agg := NewPeerStatsAggregator(&MockQuotes{Quotes: workedExamplePeers()}, time.Second)
	stats := agg.Compute(context.Background(), PeerGroup{Sector: "Test", Symbols: []string{"TOP", "LOW", "MID"}})

	expected := PeerStats{MinEPS: 2, MaxEPS: 10, MinPE: 10, MaxPE: 30, MedianPE: 20, ValidPeers: 3}
	if stats != expected {
		t.Errorf("Expected %+v, got %+v", expected, stats)
	}
}

func TestCompute_SkipsFailedAndInvalidPeers(t *testing.T) {
	peers := workedExamplePeers()
	peers["NOEPS"] = quote("NOEPS", 40, 0)
	quotes := &MockQuotes{
		Quotes: peers,
		Errors: map[string]error{"DOWN": types.ErrUnavailable},
	}
	agg := NewPeerStatsAggregator(quotes, time.Second)
	stats := agg.Compute(context.Background(), PeerGroup{Symbols: []string{"LOW", "DOWN", "MID", "NOEPS", "GONE", "TOP"}})

	if stats.ValidPeers != 3 {
		t.Fatalf("Expected 3 valid peers, got %d", stats.ValidPeers)
	}
	if stats.MedianPE != 20 || stats.MinPE != 10 || stats.MaxPE != 30 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if quotes.Calls("DOWN") != 1 || quotes.Calls("GONE") != 1 {
		t.Error("Expected every peer to be requested once")
	}
}

func TestCompute_NoValidPeers(t *testing.T) {
	quotes := &MockQuotes{Errors: map[string]error{"A": errors.New("boom"), "B": types.ErrUnavailable}}
	agg := NewPeerStatsAggregator(quotes, time.Second)
	stats := agg.Compute(context.Background(), PeerGroup{Symbols: []string{"A", "B"}})
	if stats != (PeerStats{}) {
		t.Errorf("Expected zero sentinel, got %+v", stats)
	}
	if got := NormalizePE(quote("X", 100, 5), stats); got != 0 {
		t.Errorf("Expected normPE 0 with no peers, got %v", got)
	}
}

func TestCompute_EmptyGroup(t *testing.T) {
	agg := NewPeerStatsAggregator(&MockQuotes{}, time.Second)
	if stats := agg.Compute(context.Background(), PeerGroup{Sector: SectorUnknown}); stats != (PeerStats{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}

// jitterQuotes answers after a random delay so completion order varies.
type jitterQuotes struct {
	inner *MockQuotes
	delay map[string]time.Duration
}

func (j *jitterQuotes) Quote(ctx context.Context, symbol string) (types.CompanyMetrics, error) {
	select {
	case <-time.After(j.delay[symbol]):
	case <-ctx.Done():
		return types.CompanyMetrics{}, ctx.Err()
	}
	return j.inner.Quote(ctx, symbol)
}

func TestCompute_IndependentOfArrivalOrder(t *testing.T) {
	peers := workedExamplePeers()
	peers["P4"] = quote("P4", 90, 3)
	peers["P5"] = quote("P5", 70, 7)
	symbols := []string{"LOW", "MID", "TOP", "P4", "P5"}

	var first PeerStats
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		delays := make(map[string]time.Duration)
		for _, s := range symbols {
			delays[s] = time.Duration(rng.Intn(5)) * time.Millisecond
		}
		agg := NewPeerStatsAggregator(&jitterQuotes{inner: &MockQuotes{Quotes: peers}, delay: delays}, time.Second)
		stats := agg.Compute(context.Background(), PeerGroup{Symbols: symbols})
		if round == 0 {
			first = stats
			continue
		}
		if stats != first {
			t.Fatalf("Round %d: expected %+v, got %+v", round, first, stats)
		}
	}
}

func TestCompute_TimeoutDropsSlowPeer(t *testing.T) {
	quotes := &jitterQuotes{
		inner: &MockQuotes{Quotes: workedExamplePeers()},
		delay: map[string]time.Duration{"TOP": time.Second},
	}
	agg := NewPeerStatsAggregator(quotes, 20*time.Millisecond)
	stats := agg.Compute(context.Background(), PeerGroup{Symbols: []string{"LOW", "MID", "TOP"}})
	if stats.ValidPeers != 2 {
		t.Errorf("Expected slow peer to be dropped, got %d valid peers", stats.ValidPeers)
	}
}
