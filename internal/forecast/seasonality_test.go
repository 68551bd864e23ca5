package forecast

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/stretchr/testify/assert"
)

func coef(v float64) *float64 { return &v }

func TestAdjustSeasonality(t *testing.T) {
	profile := &domain.SeasonalityProfile{ProductID: 1, Active: true}
	profile.Coefficients[0] = coef(2.0)
	profile.Coefficients[2] = coef(-1)

	start := time.Date(2026, time.January, 30, 0, 0, 0, 0, time.UTC)
	values := []float64{10, 10, 10, 10}

	t.Run("spans month boundary", func(t *testing.T) {
		got := AdjustSeasonality(values, start, profile, true)
		assert.True(t, got.Applied)
		assert.Equal(t, []float64{20, 20, 10, 10}, got.Values)
		assert.Equal(t, 60.0, got.Total)
	})

	t.Run("disabled", func(t *testing.T) {
		got := AdjustSeasonality(values, start, profile, false)
		assert.False(t, got.Applied)
		assert.Equal(t, values, got.Values)
		assert.Equal(t, 40.0, got.Total)
	})

	t.Run("inactive profile", func(t *testing.T) {
		inactive := *profile
		inactive.Active = false
		got := AdjustSeasonality(values, start, &inactive, true)
		assert.Equal(t, 40.0, got.Total)
	})

	t.Run("no profile", func(t *testing.T) {
		got := AdjustSeasonality(values, start, nil, true)
		assert.False(t, got.Applied)
		assert.Equal(t, 40.0, got.Total)
	})

	t.Run("non-positive coefficient is neutral", func(t *testing.T) {
		march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
		got := AdjustSeasonality([]float64{5}, march, profile, true)
		assert.Equal(t, []float64{5}, got.Values)
	})
}
