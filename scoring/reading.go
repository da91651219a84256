package scoring

import (
	"encoding/json"
	"math"
)

// Reading is a metric that may still be waiting on an upstream. The zero
// value is pending, so a Reading that was never set can't pass for a real 0.
type Reading struct {
	Value    float64
	Resolved bool
}

func Resolved(v float64) Reading { return Reading{Value: v, Resolved: true} }

func Pending() Reading { return Reading{} }

// Ptr returns nil for a pending reading.
func (r Reading) Ptr() *float64 {
	if !r.Resolved {
		return nil
	}
	v := r.Value
	return &v
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Resolved || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}
