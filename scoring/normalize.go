package scoring

import (
	"math"

	"stockscore/types"
)

// MaxDCFRatio caps dcf/price before it is halved into [0,1].
const MaxDCFRatio = 2.0

// NormalizedMetrics holds the target company's metrics relative to its peers.
// PE and EPS are 0 when there is no signal; DCF stays pending until a
// non-zero fair value and a usable price are both known.
type NormalizedMetrics struct {
	PE  float64 `json:"normPE"`
	EPS float64 `json:"normEPS"`
	DCF Reading `json:"normDCF"`
}

// CompanyPE is price / EPS, false when either is missing or EPS is 0.
func CompanyPE(m types.CompanyMetrics) (float64, bool) {
	if m.Price == nil || m.EPSCurrentYear == nil || *m.EPSCurrentYear == 0 {
		return 0, false
	}
	return *m.Price / *m.EPSCurrentYear, true
}

// NormalizePE centers the company PE on the peer median and divides by the
// full peer PE range. It is not a min-max rescale and can leave [-1, 1].
func NormalizePE(m types.CompanyMetrics, stats PeerStats) float64 {
	pe, ok := CompanyPE(m)
	if !ok {
		return 0
	}
	rng := stats.PERange()
	if rng == 0 {
		return 0
	}
	return (pe - stats.MedianPE) / rng
}

// NormalizeEPS is a min-max rescale of EPS over the peer range.
func NormalizeEPS(m types.CompanyMetrics, stats PeerStats) float64 {
	if m.EPSCurrentYear == nil {
		return 0
	}
	rng := stats.EPSRange()
	if rng == 0 {
		return 0
	}
	return (*m.EPSCurrentYear - stats.MinEPS) / rng
}

// NormalizeDCF clamps dcf/price to at most MaxDCFRatio and then halves it.
// Clamp first: at dcf == 2*price the result is exactly 1.
func NormalizeDCF(dcf Reading, price *float64) Reading {
	if !dcf.Resolved || dcf.Value == 0 || price == nil || *price <= 0 {
		return Pending()
	}
	ratio := dcf.Value / *price
	if math.IsNaN(ratio) {
		return Pending()
	}
	ratio = math.Max(0, math.Min(ratio, MaxDCFRatio))
	return Resolved(ratio / MaxDCFRatio)
}

func Normalize(m types.CompanyMetrics, stats PeerStats, dcf Reading) NormalizedMetrics {
	return NormalizedMetrics{
		PE:  NormalizePE(m, stats),
		EPS: NormalizeEPS(m, stats),
		DCF: NormalizeDCF(dcf, m.Price),
	}
}
