package wave

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"
)

// ErrDecode is returned when a file cannot be read or its codec is not supported.
var ErrDecode = errors.New("decode")

// Waveform is a channel-major sequence of samples tagged with its sampling rate.
type Waveform struct {
	Channels   [][]float64
	SampleRate int
}

// Len returns the number of samples per channel.
func (w *Waveform) Len() int {
	if len(w.Channels) == 0 {
		return 0
	}
	return len(w.Channels[0])
}

// NumChannels returns the channel count.
func (w *Waveform) NumChannels() int {
	return len(w.Channels)
}

// Mono returns the only channel of a single-channel waveform.
func (w *Waveform) Mono() ([]float64, bool) {
	if len(w.Channels) != 1 {
		return nil, false
	}
	return w.Channels[0], true
}

// raw holds decoded samples before normalization.
type raw struct {
	channels [][]float64
	rate     int
	// bits is the native integer width, zero for floating-point sources
	bits int
}

// Loader decodes audio files and brings them to TargetRate.
type Loader struct {
	TargetRate int
	// ResampleQuality is the beep resampler quality, 1..64.
	ResampleQuality int
	Logger          *zap.Logger
}

// NewLoader creates a Loader with default quality and a no-op logger.
func NewLoader(targetRate int) *Loader {
	return &Loader{
		TargetRate:      targetRate,
		ResampleQuality: 4,
		Logger:          zap.NewNop(),
	}
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// Load reads the file, scales its samples to [-1, 1] and resamples to TargetRate.
func (l *Loader) Load(path string) (*Waveform, error) {
	r, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	norm := r.normalizer()
	for _, ch := range r.channels {
		for i := range ch {
			ch[i] /= norm
		}
	}

	w := &Waveform{Channels: r.channels, SampleRate: r.rate}
	if l.TargetRate > 0 && w.SampleRate != l.TargetRate {
		l.logger().Debug("resampling",
			zap.String("path", path),
			zap.Int("from", w.SampleRate),
			zap.Int("to", l.TargetRate))
		if w, err = Resample(w, l.TargetRate, l.ResampleQuality); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return w, nil
}

// Length decodes the file and reports its per-channel length at TargetRate.
func (l *Loader) Length(path string) (int, error) {
	w, err := l.Load(path)
	if err != nil {
		return 0, err
	}
	return w.Len(), nil
}

// normalizer returns the divisor that maps the decoded samples into [-1, 1].
func (r raw) normalizer() float64 {
	if r.bits > 0 {
		return IntNormalizer(r.bits)
	}
	return FloatNormalizer(peak(r.channels))
}

// IntNormalizer is the magnitude of the smallest value of a signed integer of the given width.
func IntNormalizer(bits int) float64 {
	return math.Ldexp(1, bits-1)
}

// FloatNormalizer guesses the original scaling of floating-point data from its peak:
// above 2^15 the data is taken to be 32-bit PCM scaled, above 1.01 16-bit PCM
// scaled, otherwise already in range. A true [-1,1] file peaking at 1.02 is
// therefore mis-normalized; the thresholds are kept for compatibility.
func FloatNormalizer(maxMag float64) float64 {
	switch {
	case maxMag > 1<<15:
		return 1<<31 + 1
	case maxMag > 1.01:
		return 1<<15 + 1
	}
	return 1.0
}

func peak(channels [][]float64) (m float64) {
	for _, ch := range channels {
		for _, v := range ch {
			if a := math.Abs(v); a > m {
				m = a
			}
		}
	}
	return
}

func decodeFile(path string) (raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return raw{}, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	defer f.Close()

	header := make([]byte, SniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return raw{}, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return raw{}, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	var r raw
	switch format := Sniff(header[:n]); format {
	case FormatWAV:
		r, err = decodeWav(f)
	case FormatFLAC:
		r, err = decodeFlac(f)
	case FormatMP3:
		r, err = decodeMP3(f)
	case FormatOgg:
		r, err = decodeVorbis(f)
	default:
		return raw{}, fmt.Errorf("%w: %s: unrecognized audio format", ErrDecode, path)
	}
	if err != nil {
		return raw{}, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if len(r.channels) == 0 || r.rate <= 0 {
		return raw{}, fmt.Errorf("%w: %s: no audio data", ErrDecode, path)
	}
	return r, nil
}
