package pitch

import (
	"errors"
	"fmt"
)

const (
	// Floor and Ceil bound the estimator search range in Hz.
	Floor = 71.0
	Ceil  = 800.0
	// VoicedThreshold is the lowest f0 in Hz that counts as voiced.
	VoicedThreshold = 3.0
)

// ErrEstimate is returned when an estimator cannot process its input.
var ErrEstimate = errors.New("pitch estimation failed")

// Estimator produces one f0 value per analysis frame, 0 for unvoiced frames.
type Estimator interface {
	Estimate(x []float64, sampleRate int, framePeriodMs float64) ([]float64, error)
}

// NumFrames returns the number of analysis frames for n samples.
func NumFrames(n, sampleRate int, framePeriodMs float64) int {
	return int(1000*float64(n)/float64(sampleRate)/framePeriodMs) + 1
}

// Contour is an f0 track with its voiced mask.
type Contour struct {
	F0     []float64
	Voiced []bool
}

// Bounds returns the first voiced frame and the last voiced frame. When no
// frame is voiced it returns 0 and len(Voiced).
func (c Contour) Bounds() (first, last int) {
	first, last = 0, len(c.Voiced)
	for i, v := range c.Voiced {
		if v {
			first = i
			break
		}
	}
	for i := len(c.Voiced) - 1; i >= 0; i-- {
		if c.Voiced[i] {
			last = i
			break
		}
	}
	return first, last
}

// Extractor runs an Estimator at the hop rate.
type Extractor struct {
	Estimator  Estimator
	SampleRate int
	HopSize    int
}

// NewExtractor returns an Extractor whose frame period is one hop.
func NewExtractor(est Estimator, sampleRate, hopSize int) *Extractor {
	return &Extractor{Estimator: est, SampleRate: sampleRate, HopSize: hopSize}
}

// FramePeriod returns the frame period in milliseconds.
func (e *Extractor) FramePeriod() float64 {
	return float64(e.HopSize) / float64(e.SampleRate) * 1000
}

// Extract clamps the estimated f0 to [0, Ceil] and marks frames above
// VoicedThreshold as voiced. If any frame is voiced, unvoiced frames are
// filled with the voiced mean.
func (e *Extractor) Extract(x []float64) (Contour, error) {
	if e.Estimator == nil {
		return Contour{}, fmt.Errorf("%w: no estimator", ErrEstimate)
	}
	f0, err := e.Estimator.Estimate(x, e.SampleRate, e.FramePeriod())
	if err != nil {
		return Contour{}, err
	}

	c := Contour{F0: make([]float64, len(f0)), Voiced: make([]bool, len(f0))}
	sum, n := 0.0, 0
	for i, v := range f0 {
		v = min(max(v, 0), Ceil)
		c.F0[i] = v
		if v > VoicedThreshold {
			c.Voiced[i] = true
			sum += v
			n++
		}
	}
	if n > 0 {
		mean := sum / float64(n)
		for i, v := range c.Voiced {
			if !v {
				c.F0[i] = mean
			}
		}
	}
	return c, nil
}
