package mel

import (
	"errors"
	"fmt"
	"math"

	"github.com/r9y9/gossp/stft"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/neurlang/hifimel/config"
)

var (
	// ErrTooShort is returned when the waveform is too short for one analysis frame.
	ErrTooShort = errors.New("waveform too short")
	// ErrParams is returned for an unusable analysis configuration.
	ErrParams = errors.New("invalid mel parameters")
)

const (
	clipVal  = 1e-5
	compress = 1.0
	magEps   = 1e-9
)

// Device identifies where filterbanks and windows live. It only partitions the caches.
type Device string

// CPU is the default device.
const CPU Device = "cpu"

// Params represents the configuration for generating mel spectrograms.
type Params struct {
	SampleRate int
	NFFT       int
	NumMels    int
	HopSize    int
	WinSize    int
	Fmin       float64
	// Fmax of 0 selects the Nyquist frequency.
	Fmax float64
	// HTK selects the HTK mel scale instead of Slaney.
	HTK    bool
	Device Device
}

// NewParams returns the HiFi-GAN V1 analysis parameters.
func NewParams() Params {
	return FromConfig(config.Default())
}

// FromConfig copies the analysis options out of a configuration.
func FromConfig(cfg config.Config) Params {
	dev := Device(cfg.Device)
	if dev == "" {
		dev = CPU
	}
	return Params{
		SampleRate: cfg.SamplingRate,
		NFFT:       cfg.NFFT,
		NumMels:    cfg.NumMels,
		HopSize:    cfg.HopSize,
		WinSize:    cfg.WinSize,
		Fmin:       cfg.Fmin,
		Fmax:       cfg.Fmax,
		Device:     dev,
	}
}

func (p Params) validate() error {
	switch {
	case p.SampleRate <= 0, p.NFFT <= 0, p.NumMels <= 0, p.HopSize <= 0:
		return fmt.Errorf("%w: sample rate, n_fft, mels and hop must be positive", ErrParams)
	case p.WinSize <= 0 || p.WinSize > p.NFFT:
		return fmt.Errorf("%w: win_size %d outside [1, %d]", ErrParams, p.WinSize, p.NFFT)
	case p.HopSize > p.NFFT:
		return fmt.Errorf("%w: hop %d exceeds n_fft %d", ErrParams, p.HopSize, p.NFFT)
	}
	return nil
}

// Spectrogram is a mel spectrogram indexed [mel][frame].
type Spectrogram [][]float64

// NumMels returns the number of mel bands.
func (s Spectrogram) NumMels() int { return len(s) }

// Frames returns the number of frames.
func (s Spectrogram) Frames() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Clone returns a deep copy.
func (s Spectrogram) Clone() Spectrogram {
	out := make(Spectrogram, len(s))
	for i := range s {
		out[i] = append([]float64(nil), s[i]...)
	}
	return out
}

// Slice returns a copy of frames [start, end).
func (s Spectrogram) Slice(start, end int) Spectrogram {
	out := make(Spectrogram, len(s))
	for i := range s {
		out[i] = append([]float64(nil), s[i][start:end]...)
	}
	return out
}

// Fit returns a copy with exactly frames frames, cropping or padding with zeros on the right.
func (s Spectrogram) Fit(frames int) Spectrogram {
	out := make(Spectrogram, len(s))
	for i := range s {
		out[i] = make([]float64, frames)
		copy(out[i], s[i])
	}
	return out
}

// Extractor generates mel spectrograms and caches the filterbanks and windows it needs.
// It is safe for concurrent use.
type Extractor struct {
	Params
	Logger *zap.Logger

	cache *cache
}

// NewExtractor creates an Extractor for the given parameters.
func NewExtractor(p Params) (*Extractor, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Device == "" {
		p.Device = CPU
	}
	c, err := newCache()
	if err != nil {
		return nil, err
	}
	return &Extractor{Params: p, Logger: zap.NewNop(), cache: c}, nil
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Mel computes the spectrogram of y with the configured Fmax.
func (e *Extractor) Mel(y []float64) (Spectrogram, error) {
	return e.MelFmax(y, e.Fmax)
}

// MelBatch computes one spectrogram per channel.
func (e *Extractor) MelBatch(ys [][]float64) ([]Spectrogram, error) {
	out := make([]Spectrogram, len(ys))
	for i, y := range ys {
		s, err := e.Mel(y)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// Frames returns the number of frames Mel produces for n samples. With
// (NFFT-HopSize)/2 samples of reflect padding on each side this is
// (n+2*pad-NFFT)/HopSize + 1, which equals n/HopSize rounded down
// whenever NFFT-HopSize is even.
func (e *Extractor) Frames(n int) int {
	padded := n + 2*e.pad()
	if padded < e.NFFT {
		return 0
	}
	return (padded-e.NFFT)/e.HopSize + 1
}

func (e *Extractor) pad() int {
	return (e.NFFT - e.HopSize) / 2
}

// MelFmax computes the spectrogram of y using a filterbank that ends at fmax.
// Samples outside [-1, 1] are reported through the logger and used as they are.
func (e *Extractor) MelFmax(y []float64, fmax float64) (Spectrogram, error) {
	e.checkRange(y)

	pad := e.pad()
	if len(y) <= pad || e.Frames(len(y)) < 1 {
		return nil, fmt.Errorf("%w: %d samples, need more than %d", ErrTooShort, len(y), pad)
	}

	bank, err := e.Filterbank(fmax)
	if err != nil {
		return nil, err
	}

	s := stft.New(e.HopSize, e.NFFT)
	s.Window = e.Window()

	spectrum := s.STFT(reflectPad(y, pad))

	bins := e.NFFT/2 + 1
	mag := mat.NewDense(bins, len(spectrum), nil)
	for t, frame := range spectrum {
		for k := 0; k < bins; k++ {
			v := frame[k]
			mag.Set(k, t, math.Sqrt(real(v)*real(v)+imag(v)*imag(v)+magEps))
		}
	}

	var proj mat.Dense
	proj.Mul(bank.Weights, mag)

	out := make(Spectrogram, e.NumMels)
	for i := range out {
		out[i] = append([]float64(nil), proj.RawRowView(i)...)
	}
	spectralNormalize(out)

	return out, nil
}

func (e *Extractor) checkRange(y []float64) {
	if len(y) == 0 {
		return
	}
	lo, hi := y[0], y[0]
	for _, v := range y {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo < -1 {
		e.logger().Warn("min value is below -1", zap.Float64("min", lo))
	}
	if hi > 1 {
		e.logger().Warn("max value is above 1", zap.Float64("max", hi))
	}
}

// Compress applies dynamic range compression to a magnitude.
func Compress(x float64) float64 {
	return math.Log(math.Max(x, clipVal) * compress)
}

// Decompress inverts Compress above the clipping floor.
func Decompress(x float64) float64 {
	return math.Exp(x) / compress
}
