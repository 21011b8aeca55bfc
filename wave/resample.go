package wave

import (
	"errors"
	"fmt"
	"math"

	"github.com/faiface/beep"
)

// ErrResample is returned for rates or qualities the resampler cannot handle.
var ErrResample = errors.New("resample")

// Resample converts every channel of w to rate. When the rates already match,
// w itself is returned. The output holds ceil(len*rate/w.SampleRate) samples.
func Resample(w *Waveform, rate, quality int) (*Waveform, error) {
	if rate <= 0 || w.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: rates must be positive (%d -> %d)", ErrResample, w.SampleRate, rate)
	}
	if rate == w.SampleRate {
		return w, nil
	}
	if quality < 1 || quality > 64 {
		return nil, fmt.Errorf("%w: quality %d outside [1, 64]", ErrResample, quality)
	}

	out := &Waveform{SampleRate: rate, Channels: make([][]float64, len(w.Channels))}
	for c, ch := range w.Channels {
		out.Channels[c] = resampleChannel(ch, w.SampleRate, rate, quality)
	}
	return out, nil
}

func resampleChannel(x []float64, from, to, quality int) []float64 {
	want := int(math.Ceil(float64(len(x)) * float64(to) / float64(from)))
	out := make([]float64, 0, want)
	if len(x) == 0 {
		return out
	}

	pos := 0
	src := beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= len(x) {
			return 0, false
		}
		for n < len(samples) && pos < len(x) {
			samples[n][0] = x[pos]
			samples[n][1] = x[pos]
			n++
			pos++
		}
		return n, true
	})

	r := beep.Resample(quality, beep.SampleRate(from), beep.SampleRate(to), src)
	buf := make([][2]float64, 512)
	for len(out) < want {
		n, ok := r.Stream(buf)
		for i := 0; i < n && len(out) < want; i++ {
			out = append(out, buf[i][0])
		}
		if !ok {
			break
		}
	}
	for len(out) < want {
		out = append(out, 0)
	}
	return out
}
