package mel

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Slaney scale: linear below 1 kHz, logarithmic above.
const (
	slaneyFsp       = 200.0 / 3
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFsp
)

var slaneyLogstep = math.Log(6.4) / 27.0

func hzToMel(hz float64, htk bool) float64 {
	if htk {
		return hzToMelHTK(hz)
	}
	if hz < slaneyMinLogHz {
		return hz / slaneyFsp
	}
	return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogstep
}

func melToHz(m float64, htk bool) float64 {
	if htk {
		return melToHzHTK(m)
	}
	if m < slaneyMinLogMel {
		return m * slaneyFsp
	}
	return slaneyMinLogHz * math.Exp(slaneyLogstep*(m-slaneyMinLogMel))
}

func melToHzHTK(value float64) float64 {
	const breakFrequencyHertz = 700.0
	const highFrequencyQ = 1127.0
	return breakFrequencyHertz * (math.Exp(value/highFrequencyQ) - 1.0)
}

func hzToMelHTK(value float64) float64 {
	const breakFrequencyHertz = 700.0
	const highFrequencyQ = 1127.0
	return highFrequencyQ * math.Log(1.0+(value/breakFrequencyHertz))
}

// melFrequencies returns n frequencies evenly spaced on the mel scale.
func melFrequencies(n int, fmin, fmax float64, htk bool) []float64 {
	mels := make([]float64, n)
	floats.Span(mels, hzToMel(fmin, htk), hzToMel(fmax, htk))
	for i := range mels {
		mels[i] = melToHz(mels[i], htk)
	}
	return mels
}

// Filterbank is a mel projection matrix of shape (mels, n_fft/2+1).
type Filterbank struct {
	Weights *mat.Dense
	Fmin    float64
	Fmax    float64
}

// NewFilterbank builds triangular filters with Slaney area normalization.
// A zero fmax selects sr/2.
func NewFilterbank(sr, nfft, mels int, fmin, fmax float64, htk bool) *Filterbank {
	if fmax <= 0 {
		fmax = float64(sr) / 2
	}
	bins := nfft/2 + 1

	fftfreqs := make([]float64, bins)
	for k := range fftfreqs {
		fftfreqs[k] = float64(k) * float64(sr) / float64(nfft)
	}

	melf := melFrequencies(mels+2, fmin, fmax, htk)
	fdiff := make([]float64, len(melf)-1)
	for i := range fdiff {
		fdiff[i] = melf[i+1] - melf[i]
	}

	weights := mat.NewDense(mels, bins, nil)
	for i := 0; i < mels; i++ {
		enorm := 2.0 / (melf[i+2] - melf[i])
		for k, f := range fftfreqs {
			lower := (f - melf[i]) / fdiff[i]
			upper := (melf[i+2] - f) / fdiff[i+1]
			w := math.Max(0, math.Min(lower, upper))
			weights.Set(i, k, w*enorm)
		}
	}
	return &Filterbank{Weights: weights, Fmin: fmin, Fmax: fmax}
}

// hannWindow returns a periodic Hann window of length win, zero padded
// symmetrically to nfft samples.
func hannWindow(win, nfft int) []float64 {
	out := make([]float64, nfft)
	left := (nfft - win) / 2
	for n := 0; n < win; n++ {
		out[left+n] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(win))
	}
	return out
}

// reflectPad mirrors pad samples on both ends, excluding the edge sample.
// len(buf) must exceed pad.
func reflectPad(buf []float64, pad int) []float64 {
	out := make([]float64, len(buf)+2*pad)
	copy(out[pad:], buf)
	for i := 0; i < pad; i++ {
		out[pad-1-i] = buf[i+1]
		out[pad+len(buf)+i] = buf[len(buf)-2-i]
	}
	return out
}

func spectralNormalize(s Spectrogram) {
	for _, row := range s {
		for i := range row {
			row[i] = Compress(row[i])
		}
	}
}

func spectralDenormalize(s Spectrogram) {
	for _, row := range s {
		for i := range row {
			row[i] = Decompress(row[i])
		}
	}
}

// SavePNG renders s as a grayscale image with low frequencies at the bottom.
func SavePNG(name string, s Spectrogram) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}

	mels, frames := s.NumMels(), s.Frames()
	img := image.NewGray(image.Rect(0, 0, frames, mels))

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range s {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	for y, row := range s {
		for x, v := range row {
			img.SetGray(x, mels-y-1, color.Gray{Y: uint8(255 * (v - lo) / span)})
		}
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
