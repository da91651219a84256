package scoring

import (
	"context"
	"math"
	"sync"

	"stockscore/types"
)

func quote(symbol string, price, eps float64) types.CompanyMetrics {
	return types.CompanyMetrics{Symbol: symbol, DisplayName: symbol + " Inc.", Price: &price, EPSCurrentYear: &eps}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// MockQuotes serves fixed quotes. Symbols listed in Errors fail.
type MockQuotes struct {
	Quotes map[string]types.CompanyMetrics
	Errors map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockQuotes) Quote(ctx context.Context, symbol string) (types.CompanyMetrics, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return types.CompanyMetrics{}, err
	}
	if err, ok := m.Errors[symbol]; ok {
		return types.CompanyMetrics{}, err
	}
	q, ok := m.Quotes[symbol]
	if !ok {
		return types.CompanyMetrics{}, types.ErrNotFound
	}
	return q, nil
}

func (m *MockQuotes) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// workedExamplePeers gives PE range [10,30] with median 20 and EPS range [2,10].
func workedExamplePeers() map[string]types.CompanyMetrics {
	return map[string]types.CompanyMetrics{
		"LOW": quote("LOW", 20, 2),
		"MID": quote("MID", 100, 5),
		"TOP": quote("TOP", 300, 10),
	}
}
