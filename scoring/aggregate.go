package scoring

import "math"

// Component weights. They add up to NominalMaxScore but the total is capped
// at MaxScore; the gap is intentional.
const (
	WeightPE        = 10.0
	WeightEPS       = 20.0
	WeightDCF       = 20.0
	WeightSentiment = 20.0

	NominalMaxScore = WeightPE + WeightEPS + WeightDCF + WeightSentiment
	MaxScore        = 60.0
)

// Score is the weighted investment score and the inputs it was built from.
type Score struct {
	NormPE    float64 `json:"normPE"`
	NormEPS   float64 `json:"normEPS"`
	NormDCF   Reading `json:"normDCF"`
	Sentiment Reading `json:"sentiment"`
	Total     float64 `json:"total"`
}

// WeightedMetric is one row of a score breakdown.
type WeightedMetric struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Pending      bool    `json:"pending"`
}

// Aggregate combines the normalized metrics. Pending DCF or sentiment add
// nothing. The total is clamped to [0, MaxScore] and a non-finite total is 0.
func Aggregate(normPE, normEPS float64, normDCF, sentiment Reading) Score {
	total := normPE*WeightPE + normEPS*WeightEPS
	if normDCF.Resolved {
		total += normDCF.Value * WeightDCF
	}
	if sentiment.Resolved {
		total += sentiment.Value * WeightSentiment
	}

	if math.IsNaN(total) || math.IsInf(total, 0) {
		total = 0
	} else {
		total = math.Max(0, math.Min(total, MaxScore))
	}

	return Score{
		NormPE:    normPE,
		NormEPS:   normEPS,
		NormDCF:   normDCF,
		Sentiment: sentiment,
		Total:     total,
	}
}

// Breakdown lists each component with its weight and contribution, in the
// order PE, EPS, sentiment, DCF.
func (s Score) Breakdown() []WeightedMetric {
	row := func(name string, r Reading, w float64) WeightedMetric {
		return WeightedMetric{Name: name, Value: r.Value, Weight: w, Contribution: r.Value * w, Pending: !r.Resolved}
	}
	return []WeightedMetric{
		row("Normalized PE", Resolved(s.NormPE), WeightPE),
		row("Normalized EPS", Resolved(s.NormEPS), WeightEPS),
		row("Sentiment Score", s.Sentiment, WeightSentiment),
		row("Normalized DCF", s.NormDCF, WeightDCF),
	}
}
