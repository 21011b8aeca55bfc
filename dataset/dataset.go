package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/neurlang/hifimel/config"
	"github.com/neurlang/hifimel/mel"
	"github.com/neurlang/hifimel/pitch"
	"github.com/neurlang/hifimel/wave"
)

var (
	// ErrConfig is returned for invalid options or a sample rate mismatch.
	ErrConfig = errors.New("dataset config")
	// ErrShape is returned when audio or a mel sidecar has an unusable shape.
	ErrShape = errors.New("dataset shape")
	// ErrPitchUnavailable is returned when voiced trimming is requested without an estimator.
	ErrPitchUnavailable = errors.New("pitch estimator unavailable")
	// ErrIndex is returned for an out of range example index.
	ErrIndex = errors.New("index out of range")
)

// Seed seeds the default random source.
const Seed = 1234

// peakTarget is the absolute peak each channel is scaled to outside fine-tuning.
const peakTarget = 0.95

// Options carries the collaborators of a Dataset. Zero fields get defaults.
type Options struct {
	Rand      *rand.Rand
	Pitch     pitch.Estimator
	Loader    *wave.Loader
	Extractor *mel.Extractor
	Logger    *zap.Logger
}

// Example is one training item. Mel and MelLoss hold one spectrogram per channel.
type Example struct {
	Mel     []mel.Spectrogram
	Audio   [][]float64
	Path    string
	MelLoss []mel.Spectrogram
}

// Dataset produces examples from a list of audio files.
type Dataset struct {
	cfg       config.Config
	files     []string
	rng       *rand.Rand
	loader    *wave.Loader
	extractor *mel.Extractor
	pitch     *pitch.Extractor
	logger    *zap.Logger

	mu          sync.Mutex
	cached      *wave.Waveform
	cachedIndex int
	refCount    int
}

// New creates a Dataset over files. When cfg.Shuffle is set the files are
// shuffled once with the dataset's random source.
func New(files []string, cfg config.Config, opts Options) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.TrimNonVoiced && opts.Pitch == nil {
		return nil, ErrPitchUnavailable
	}

	d := &Dataset{
		cfg:         cfg,
		files:       append([]string(nil), files...),
		rng:         opts.Rand,
		loader:      opts.Loader,
		extractor:   opts.Extractor,
		logger:      opts.Logger,
		cachedIndex: -1,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(Seed))
	}
	if d.loader == nil {
		d.loader = wave.NewLoader(cfg.SamplingRate)
		d.loader.ResampleQuality = cfg.ResampleQuality
		d.loader.Logger = d.logger
	}
	if d.extractor == nil {
		e, err := mel.NewExtractor(mel.FromConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		e.Logger = d.logger
		d.extractor = e
	}
	if opts.Pitch != nil {
		d.pitch = pitch.NewExtractor(opts.Pitch, cfg.SamplingRate, cfg.HopSize)
	}

	if cfg.Shuffle {
		d.rng.Shuffle(len(d.files), func(i, j int) {
			d.files[i], d.files[j] = d.files[j], d.files[i]
		})
	}

	d.logger.Debug("dataset ready",
		zap.Int("files", len(d.files)),
		zap.Bool("fine_tuning", cfg.FineTuning),
		zap.Bool("split", cfg.Split))
	return d, nil
}

// Len returns the number of files.
func (d *Dataset) Len() int { return len(d.files) }

// Files returns the files in iteration order.
func (d *Dataset) Files() []string { return append([]string(nil), d.files...) }

// Get returns example i. The decoded waveform of i is cached and reused for
// up to NCacheReuse further calls with the same index; other indices do not
// share it.
func (d *Dataset) Get(i int) (Example, error) {
	if i < 0 || i >= len(d.files) {
		return Example{}, fmt.Errorf("%w: %d of %d", ErrIndex, i, len(d.files))
	}
	path := d.files[i]

	d.mu.Lock()
	defer d.mu.Unlock()

	w, err := d.load(i)
	if err != nil {
		return Example{}, err
	}
	audio := w.Channels

	if d.cfg.TrimNonVoiced {
		audio, err = d.trim(audio)
		if err != nil {
			return Example{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	var ex Example
	if d.cfg.FineTuning {
		ex, err = d.fineTuning(path, audio)
	} else {
		ex, err = d.training(audio)
	}
	if err != nil {
		return Example{}, fmt.Errorf("%s: %w", path, err)
	}
	ex.Path = path
	ex.MelLoss = make([]mel.Spectrogram, len(ex.Mel))
	for c, m := range ex.Mel {
		ex.MelLoss[c] = m.Clone()
	}
	return ex, nil
}

func (d *Dataset) load(i int) (*wave.Waveform, error) {
	if d.refCount > 0 && d.cachedIndex == i && d.cached != nil {
		d.refCount--
		return d.cached, nil
	}

	path := d.files[i]
	w, err := d.loader.Load(path)
	if err != nil {
		return nil, err
	}
	if w.SampleRate != d.cfg.SamplingRate {
		return nil, fmt.Errorf("%w: %s: %d SR doesn't match target %d SR",
			ErrConfig, path, w.SampleRate, d.cfg.SamplingRate)
	}
	if !d.cfg.FineTuning {
		for _, ch := range w.Channels {
			peakNormalize(ch)
		}
	}

	d.cached = w
	d.cachedIndex = i
	d.refCount = d.cfg.NCacheReuse
	return w, nil
}

// peakNormalize scales x in place so its absolute peak is peakTarget.
// All-zero input is left unchanged.
func peakNormalize(x []float64) {
	peak := 0.0
	for _, v := range x {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak == 0 {
		return
	}
	scale := peakTarget / peak
	for i := range x {
		x[i] *= scale
	}
}

// trim keeps the samples between the first and last voiced frames.
func (d *Dataset) trim(audio [][]float64) ([][]float64, error) {
	if len(audio) != 1 {
		return nil, fmt.Errorf("%w: voiced trimming needs mono audio, got %d channels", ErrShape, len(audio))
	}
	c, err := d.pitch.Extract(audio[0])
	if err != nil {
		return nil, err
	}
	first, last := c.Bounds()

	n := len(audio[0])
	start := min(first*d.cfg.HopSize, n)
	end := min(max(last*d.cfg.HopSize, start), n)
	return [][]float64{audio[0][start:end]}, nil
}

func (d *Dataset) training(audio [][]float64) (Example, error) {
	if d.cfg.Split {
		audio = d.segment(audio)
	} else {
		audio = cloneChannels(audio)
	}
	mels, err := d.extractor.MelBatch(audio)
	if err != nil {
		return Example{}, err
	}
	return Example{Mel: mels, Audio: audio}, nil
}

// segment picks a random SegmentSize window shared by all channels, or pads
// shorter audio with zeros on the right.
func (d *Dataset) segment(audio [][]float64) [][]float64 {
	seg := d.cfg.SegmentSize
	n := channelLen(audio)
	if n >= seg {
		start := d.rng.Intn(n - seg + 1)
		return fitChannels(audio, start, start+seg, seg)
	}
	return fitChannels(audio, 0, n, seg)
}

func (d *Dataset) fineTuning(path string, audio [][]float64) (Example, error) {
	mels, err := mel.LoadNpy(SidecarPath(path))
	if err != nil {
		return Example{}, err
	}
	if len(mels) != len(audio) {
		return Example{}, fmt.Errorf("%w: %d sidecar spectrograms for %d channels", ErrShape, len(mels), len(audio))
	}
	for _, m := range mels {
		if m.NumMels() != d.cfg.NumMels {
			return Example{}, fmt.Errorf("%w: sidecar has %d mels, want %d", ErrShape, m.NumMels(), d.cfg.NumMels)
		}
	}

	if !d.cfg.Split {
		return Example{Mel: mels, Audio: cloneChannels(audio)}, nil
	}

	hop := d.cfg.HopSize
	fps := int(math.Ceil(float64(d.cfg.SegmentSize) / float64(hop)))
	n := channelLen(audio)

	if n < d.cfg.SegmentSize {
		for i := range mels {
			mels[i] = mels[i].Fit(fps)
		}
		return Example{Mel: mels, Audio: fitChannels(audio, 0, n, fps*hop)}, nil
	}

	frames := mels[0].Frames()
	maxStart := frames - fps - 1
	if maxStart < 0 {
		return Example{}, fmt.Errorf("%w: sidecar has %d frames, need more than %d", ErrShape, frames, fps)
	}
	start := d.rng.Intn(maxStart + 1)
	for i := range mels {
		mels[i] = mels[i].Slice(start, start+fps)
	}

	from := min(start*hop, n)
	to := min((start+fps)*hop, n)
	return Example{Mel: mels, Audio: fitChannels(audio, from, to, fps*hop)}, nil
}

// SidecarPath returns the .npy path that holds the precomputed mel of an audio file.
func SidecarPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".npy"
}

func channelLen(audio [][]float64) int {
	if len(audio) == 0 {
		return 0
	}
	return len(audio[0])
}

// fitChannels copies [from, to) of every channel into buffers of length size.
func fitChannels(audio [][]float64, from, to, size int) [][]float64 {
	out := make([][]float64, len(audio))
	for i, ch := range audio {
		out[i] = make([]float64, size)
		copy(out[i], ch[from:to])
	}
	return out
}

func cloneChannels(audio [][]float64) [][]float64 {
	out := make([][]float64, len(audio))
	for i, ch := range audio {
		out[i] = append([]float64(nil), ch...)
	}
	return out
}
