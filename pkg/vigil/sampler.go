// sampler.go decides whether a capture is kept.

package vigil

import "math/rand/v2"

// Sampler is a single independent probability check per capture.
type Sampler struct {
	rate  float64
	float func() float64
}

// NewSampler returns a Sampler that keeps a capture with probability rate.
func NewSampler(rate float64) *Sampler {
	return &Sampler{rate: rate, float: rand.Float64}
}

// newSamplerWithSource is used by tests to make draws deterministic.
func newSamplerWithSource(rate float64, float func() float64) *Sampler {
	return &Sampler{rate: rate, float: float}
}

// Rate returns the configured sampling rate.
func (s *Sampler) Rate() float64 {
	return s.rate
}

// Sample reports whether the next capture should be kept. Rates at or above 1
// always keep and rates at or below 0 never keep, without drawing.
func (s *Sampler) Sample() bool {
	if s.rate >= 1 {
		return true
	}
	if s.rate <= 0 {
		return false
	}
	return s.float() < s.rate
}
