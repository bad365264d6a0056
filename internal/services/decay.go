package services

import (
	"math"
	"time"

	"github.com/scentmatch/engine/internal/config"
)

// DecayEngine discounts interaction magnitude by age. It is applied at
// read time only: the stored interaction log stays immutable and the same
// event decays further on every later read.
type DecayEngine struct {
	factor float64
}

func NewDecayEngine(cfg *config.DecayConfig) *DecayEngine {
	return &DecayEngine{factor: cfg.Factor}
}

// EffectiveMagnitude returns magnitude * factor^weeks for the elapsed time
// between createdAt and now. Fractional weeks count, so the result is
// strictly decreasing in age and approaches zero without reaching it.
func (d *DecayEngine) EffectiveMagnitude(magnitude float64, createdAt, now time.Time) float64 {
	weeks := now.Sub(createdAt).Hours() / (24 * 7)
	if weeks <= 0 {
		return magnitude
	}
	return magnitude * math.Pow(d.factor, weeks)
}
