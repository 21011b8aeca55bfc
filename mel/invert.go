package mel

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/r9y9/gossp/stft"
	"gonum.org/v1/gonum/mat"
)

// DefaultIterations is the Griffin-Lim iteration count used by Invert callers
// that have no preference.
const DefaultIterations = 32

// Invert approximately reconstructs a waveform from a log mel spectrogram
// produced with the extractor's configured Fmax.
func (e *Extractor) Invert(s Spectrogram, iterations int) ([]float64, error) {
	if s.NumMels() != e.NumMels {
		return nil, fmt.Errorf("%w: spectrogram has %d mels, want %d", ErrParams, s.NumMels(), e.NumMels)
	}
	if s.Frames() == 0 {
		return nil, fmt.Errorf("%w: empty spectrogram", ErrTooShort)
	}

	bank, err := e.Filterbank(e.Fmax)
	if err != nil {
		return nil, err
	}

	linear := s.Clone()
	spectralDenormalize(linear)
	mags := e.unmel(bank, linear)

	spectrum := fullSpectrum(mags, e.NFFT)

	st := stft.New(e.HopSize, e.NFFT)
	st.Window = e.Window()

	buf := ISTFT(st, spectrum, iterations)

	pad := e.pad()
	if len(buf) <= 2*pad {
		return nil, fmt.Errorf("%w: %d frames", ErrTooShort, s.Frames())
	}
	return buf[pad : len(buf)-pad], nil
}

// unmel maps mel magnitudes back onto linear frequency bins. Each bin gets the
// filter-weighted mel energy, scaled so a flat spectrum maps back to itself.
// The result has shape (frames, bins).
func (e *Extractor) unmel(bank *Filterbank, s Spectrogram) *mat.Dense {
	mels, frames := s.NumMels(), s.Frames()
	m := mat.NewDense(mels, frames, nil)
	for i, row := range s {
		m.SetRow(i, row)
	}

	w := bank.Weights
	_, bins := w.Dims()

	rowSums := make([]float64, mels)
	for i := range rowSums {
		for k := 0; k < bins; k++ {
			rowSums[i] += w.At(i, k)
		}
	}
	denom := make([]float64, bins)
	for k := range denom {
		for i := 0; i < mels; i++ {
			denom[k] += w.At(i, k) * rowSums[i]
		}
	}

	var lin mat.Dense
	lin.Mul(m.T(), w)
	for t := 0; t < frames; t++ {
		for k := 0; k < bins; k++ {
			if denom[k] == 0 {
				lin.Set(t, k, 0)
				continue
			}
			lin.Set(t, k, lin.At(t, k)/denom[k])
		}
	}
	return &lin
}

// fullSpectrum expands one-sided magnitudes into conjugate-symmetric frames
// with zero phase.
func fullSpectrum(mags *mat.Dense, nfft int) [][]complex128 {
	frames, bins := mags.Dims()
	out := make([][]complex128, frames)
	for t := range out {
		frame := make([]complex128, nfft)
		for k := 0; k < bins; k++ {
			frame[k] = complex(mags.At(t, k), 0)
		}
		for k := bins; k < nfft; k++ {
			frame[k] = cmplx.Conj(frame[nfft-k])
		}
		out[t] = frame
	}
	return out
}

func overlapAdd(s *stft.STFT, spectrogram [][]complex128) []float64 {
	frameLen := len(spectrogram[0])
	numFrames := len(spectrogram)
	signal := make([]float64, frameLen+(numFrames-1)*s.FrameShift)
	windowSum := make([]float64, len(signal))

	for i := 0; i < numFrames; i++ {
		buf := fft.IFFT(spectrogram[i])
		for j := 0; j < frameLen; j++ {
			t := i*s.FrameShift + j
			signal[t] += real(buf[j]) * s.Window[j]
			windowSum[t] += s.Window[j] * s.Window[j]
		}
	}

	for i := range signal {
		if windowSum[i] > 1e-8 {
			signal[i] /= windowSum[i]
		}
	}
	return signal
}

// ISTFT runs Griffin-Lim phase reconstruction on spectrogram, whose frames are
// full n_fft-point spectra. The magnitudes of spectrogram are kept and its
// phases are updated in place.
func ISTFT(s *stft.STFT, spectrogram [][]complex128, numIterations int) []float64 {
	frameLen := len(spectrogram[0])
	numFrames := len(spectrogram)

	signal := overlapAdd(s, spectrogram)

	for iter := 0; iter < numIterations; iter++ {
		for i := 0; i < numFrames; i++ {
			frame := make([]float64, frameLen)
			for j := 0; j < frameLen; j++ {
				if i*s.FrameShift+j < len(signal) {
					frame[j] = signal[i*s.FrameShift+j] * s.Window[j]
				}
			}
			estimate := fft.FFTReal(frame)

			for j := range estimate {
				magnitude := cmplx.Abs(spectrogram[i][j])
				spectrogram[i][j] = cmplx.Rect(magnitude, cmplx.Phase(estimate[j]))
			}
		}
		signal = overlapAdd(s, spectrogram)
	}

	return signal
}
