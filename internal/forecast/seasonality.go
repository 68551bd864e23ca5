package forecast

import (
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Adjusted holds seasonally adjusted daily values.
type Adjusted struct {
	Values  []float64
	Total   float64
	Applied bool
}

// AdjustSeasonality multiplies each daily value by the coefficient of the
// month it falls in. Values[i] is dated start + i days. When enabled is
// false or no active profile exists every coefficient is 1.0.
func AdjustSeasonality(values []float64, start time.Time, profile *domain.SeasonalityProfile, enabled bool) Adjusted {
	out := Adjusted{Values: make([]float64, len(values))}
	apply := enabled && profile != nil && profile.Active

	for i, v := range values {
		if apply {
			v *= profile.Coefficient(start.AddDate(0, 0, i).Month())
		}
		out.Values[i] = v
		out.Total += v
	}
	out.Applied = apply
	return out
}
