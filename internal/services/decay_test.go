package services

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scentmatch/engine/internal/config"
)

func TestDecayEngine_EffectiveMagnitude(t *testing.T) {
	decay := NewDecayEngine(&config.Default().Decay)
	now := time.Now()

	t.Run("ten weeks decays to roughly sixty percent", func(t *testing.T) {
		createdAt := now.Add(-10 * 7 * 24 * time.Hour)
		got := decay.EffectiveMagnitude(1.0, createdAt, now)
		assert.InDelta(t, math.Pow(0.95, 10), got, 1e-9)
		assert.InDelta(t, 0.5987, got, 0.001)
	})

	t.Run("fresh interactions keep full magnitude", func(t *testing.T) {
		assert.Equal(t, 0.8, decay.EffectiveMagnitude(0.8, now, now))
	})

	t.Run("future timestamps are not amplified", func(t *testing.T) {
		createdAt := now.Add(time.Hour)
		assert.Equal(t, 0.8, decay.EffectiveMagnitude(0.8, createdAt, now))
	})

	t.Run("strictly decreasing in age", func(t *testing.T) {
		prev := math.Inf(1)
		for weeks := 1; weeks <= 52; weeks *= 2 {
			createdAt := now.Add(-time.Duration(weeks) * 7 * 24 * time.Hour)
			got := decay.EffectiveMagnitude(1.0, createdAt, now)
			assert.Less(t, got, prev)
			assert.Greater(t, got, 0.0)
			prev = got
		}
	})

	t.Run("fractional weeks decay partially", func(t *testing.T) {
		createdAt := now.Add(-3*24*time.Hour - 12*time.Hour) // half a week
		got := decay.EffectiveMagnitude(1.0, createdAt, now)
		assert.InDelta(t, math.Pow(0.95, 0.5), got, 1e-9)
	})
}
