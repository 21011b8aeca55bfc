package pitch

import (
	"fmt"
	"math"

	"github.com/r9y9/gossp/f0"
)

// YIN estimates f0 per frame with the YIN algorithm from gossp.
type YIN struct {
	Floor, Ceil float64
	// Threshold is the absolute CMNDF threshold below which a lag is accepted.
	Threshold float64
	// SilenceRMS gates frames whose RMS is below it as unvoiced.
	SilenceRMS float64
}

// NewYIN returns a YIN estimator searching [Floor, Ceil].
func NewYIN() *YIN {
	return &YIN{Floor: Floor, Ceil: Ceil, Threshold: f0.DefaultThreshold, SilenceRMS: 1e-4}
}

// Estimate implements Estimator. Frame i is centered at i·framePeriodMs and
// spans two periods of the floor frequency. Estimates outside [Floor, Ceil]
// are reported as unvoiced.
func (y *YIN) Estimate(x []float64, sampleRate int, framePeriodMs float64) ([]float64, error) {
	if sampleRate <= 0 || framePeriodMs <= 0 {
		return nil, fmt.Errorf("%w: rate %d, frame period %g", ErrEstimate, sampleRate, framePeriodMs)
	}
	if y.Floor <= 0 || y.Ceil <= y.Floor {
		return nil, fmt.Errorf("%w: search range [%g, %g]", ErrEstimate, y.Floor, y.Ceil)
	}

	tauMax := int(math.Ceil(float64(sampleRate) / y.Floor))
	seg := make([]float64, 2*(tauMax+1))

	est := f0.NewYIN(sampleRate)
	est.Threshold = y.Threshold

	out := make([]float64, NumFrames(len(x), sampleRate, framePeriodMs))
	for i := range out {
		center := int(math.Round(float64(i) * framePeriodMs * float64(sampleRate) / 1000))
		start := center - len(seg)/2
		for j := range seg {
			k := start + j
			if k >= 0 && k < len(x) {
				seg[j] = x[k]
			} else {
				seg[j] = 0
			}
		}
		out[i] = y.frame(est, seg)
	}
	return out, nil
}

func (y *YIN) frame(est *f0.YIN, seg []float64) float64 {
	head := seg[:len(seg)/2]
	energy := 0.0
	for _, v := range head {
		energy += v * v
	}
	if math.Sqrt(energy/float64(len(head))) < y.SilenceRMS {
		return 0
	}

	// Difference accumulates into Buffer, so it must start from zero.
	if len(est.Buffer) == len(seg) {
		for i := range est.Buffer {
			est.Buffer[i] = 0
		}
	}
	hz, _ := est.ComputeF0(seg)

	if math.IsNaN(hz) || hz < y.Floor || hz > y.Ceil {
		return 0
	}
	return hz
}
