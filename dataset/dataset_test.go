package dataset

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurlang/hifimel/config"
	"github.com/neurlang/hifimel/mel"
	"github.com/neurlang/hifimel/pitch"
	"github.com/neurlang/hifimel/wave"
)

const rate = 22050

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Shuffle = false
	return cfg
}

func chirp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / rate
		out[i] = 0.5 * math.Sin(2*math.Pi*(200+400*t)*t)
	}
	return out
}

func writeWav(t *testing.T, dir, name string, x []float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, wave.SavePCM(path, [][]float64{x}, rate, 16))
	return path
}

func reference(t *testing.T, path string, normalize bool) []float64 {
	t.Helper()
	w, err := wave.NewLoader(rate).Load(path)
	require.NoError(t, err)
	x := w.Channels[0]
	if normalize {
		peakNormalize(x)
	}
	return x
}

func maxAbs(x []float64) (m float64) {
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return
}

func TestShortAudioIsPadded(t *testing.T) {
	path := writeWav(t, t.TempDir(), "short.wav", chirp(4001))

	d, err := New([]string{path}, testConfig(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())

	ex, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, path, ex.Path)
	require.Len(t, ex.Audio, 1)
	require.Len(t, ex.Audio[0], 8192)
	for _, v := range ex.Audio[0][4001:] {
		require.Zero(t, v)
	}
	assert.InDelta(t, 0.95, maxAbs(ex.Audio[0]), 1e-12)

	require.Len(t, ex.Mel, 1)
	assert.Equal(t, 80, ex.Mel[0].NumMels())
	assert.Equal(t, 32, ex.Mel[0].Frames())
	assert.Equal(t, ex.Mel, ex.MelLoss)
}

func TestLongAudioIsSegmented(t *testing.T) {
	path := writeWav(t, t.TempDir(), "long.wav", chirp(30000))
	source := reference(t, path, true)

	d, err := New([]string{path}, testConfig(), Options{})
	require.NoError(t, err)

	starts := map[int]bool{}
	for k := 0; k < 5; k++ {
		ex, err := d.Get(0)
		require.NoError(t, err)
		seg := ex.Audio[0]
		require.Len(t, seg, 8192)
		assert.Equal(t, 32, ex.Mel[0].Frames())

		start := -1
		for s := 0; s+len(seg) <= len(source); s++ {
			if assert.ObjectsAreEqual(source[s:s+len(seg)], seg) {
				start = s
				break
			}
		}
		require.GreaterOrEqual(t, start, 0, "segment is not a window of the source")
		starts[start] = true
	}
	assert.Greater(t, len(starts), 1)
}

func TestSeededRandIsReproducible(t *testing.T) {
	path := writeWav(t, t.TempDir(), "long.wav", chirp(30000))

	run := func() [][]float64 {
		d, err := New([]string{path}, testConfig(), Options{Rand: rand.New(rand.NewSource(7))})
		require.NoError(t, err)
		var out [][]float64
		for k := 0; k < 3; k++ {
			ex, err := d.Get(0)
			require.NoError(t, err)
			out = append(out, ex.Audio[0])
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestNoSplitKeepsWholeFile(t *testing.T) {
	path := writeWav(t, t.TempDir(), "a.wav", chirp(10001))
	cfg := testConfig()
	cfg.Split = false

	d, err := New([]string{path}, cfg, Options{})
	require.NoError(t, err)
	ex, err := d.Get(0)
	require.NoError(t, err)
	assert.Len(t, ex.Audio[0], 10001)
	assert.Equal(t, 10001/256, ex.Mel[0].Frames())
}

func TestShuffle(t *testing.T) {
	files := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	cfg := testConfig()
	d, err := New(files, cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, files, d.Files())

	cfg.Shuffle = true
	d1, err := New(files, cfg, Options{})
	require.NoError(t, err)
	d2, err := New(files, cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, d1.Files(), d2.Files())
	assert.ElementsMatch(t, files, d1.Files())
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, files)
}

func TestCacheReuse(t *testing.T) {
	dir := t.TempDir()
	a := writeWav(t, dir, "a.wav", chirp(9000))
	b := writeWav(t, dir, "b.wav", chirp(9000))

	cfg := testConfig()
	cfg.NCacheReuse = 2
	d, err := New([]string{a, b}, cfg, Options{})
	require.NoError(t, err)

	_, err = d.Get(0)
	require.NoError(t, err)
	require.NoError(t, os.Remove(a))

	for k := 0; k < 2; k++ {
		_, err = d.Get(0)
		require.NoError(t, err, "reuse %d", k)
	}
	_, err = d.Get(0)
	assert.ErrorIs(t, err, wave.ErrDecode)

	// the cache belongs to one index
	_, err = d.Get(1)
	require.NoError(t, err)
	require.NoError(t, os.Remove(b))
	_, err = d.Get(1)
	require.NoError(t, err)
}

func TestCacheIsPerIndex(t *testing.T) {
	dir := t.TempDir()
	a := writeWav(t, dir, "a.wav", chirp(9000))
	b := filepath.Join(dir, "missing.wav")

	cfg := testConfig()
	cfg.NCacheReuse = 5
	d, err := New([]string{a, b}, cfg, Options{})
	require.NoError(t, err)

	_, err = d.Get(0)
	require.NoError(t, err)
	_, err = d.Get(1)
	assert.ErrorIs(t, err, wave.ErrDecode)
}

func TestRateMismatch(t *testing.T) {
	path := writeWav(t, t.TempDir(), "a.wav", chirp(9000))
	d, err := New([]string{path}, testConfig(), Options{Loader: wave.NewLoader(16000)})
	require.NoError(t, err)

	_, err = d.Get(0)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestIndexOutOfRange(t *testing.T) {
	d, err := New([]string{"a.wav"}, testConfig(), Options{})
	require.NoError(t, err)
	_, err = d.Get(1)
	assert.ErrorIs(t, err, ErrIndex)
	_, err = d.Get(-1)
	assert.ErrorIs(t, err, ErrIndex)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.HopSize = 0
	_, err := New(nil, cfg, Options{})
	assert.ErrorIs(t, err, ErrConfig)

	cfg = testConfig()
	cfg.TrimNonVoiced = true
	_, err = New(nil, cfg, Options{})
	assert.ErrorIs(t, err, ErrPitchUnavailable)
}

type stubPitch struct{ first, last int }

func (s stubPitch) Estimate(x []float64, sampleRate int, framePeriodMs float64) ([]float64, error) {
	f0 := make([]float64, pitch.NumFrames(len(x), sampleRate, framePeriodMs))
	for i := s.first; i <= s.last && i < len(f0); i++ {
		f0[i] = 120
	}
	return f0, nil
}

func TestTrimNonVoiced(t *testing.T) {
	path := writeWav(t, t.TempDir(), "a.wav", chirp(rate))
	source := reference(t, path, true)

	cfg := testConfig()
	cfg.TrimNonVoiced = true
	cfg.Split = false
	d, err := New([]string{path}, cfg, Options{Pitch: stubPitch{first: 10, last: 20}})
	require.NoError(t, err)

	ex, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, source[10*256:20*256], ex.Audio[0])
	assert.Equal(t, 10, ex.Mel[0].Frames())
}

func TestTrimNeedsMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	require.NoError(t, wave.SavePCM(path, [][]float64{chirp(9000), chirp(9000)}, rate, 16))

	cfg := testConfig()
	cfg.TrimNonVoiced = true
	d, err := New([]string{path}, cfg, Options{Pitch: stubPitch{first: 1, last: 2}})
	require.NoError(t, err)

	_, err = d.Get(0)
	assert.ErrorIs(t, err, ErrShape)
}

func TestStereoSharesOffset(t *testing.T) {
	left := chirp(20000)
	right := make([]float64, len(left))
	for i := range left {
		right[i] = -left[i]
	}
	path := filepath.Join(t.TempDir(), "stereo.wav")
	require.NoError(t, wave.SavePCM(path, [][]float64{left, right}, rate, 16))

	d, err := New([]string{path}, testConfig(), Options{})
	require.NoError(t, err)
	ex, err := d.Get(0)
	require.NoError(t, err)
	require.Len(t, ex.Audio, 2)
	require.Len(t, ex.Mel, 2)
	for i := range ex.Audio[0] {
		require.InDelta(t, -ex.Audio[0][i], ex.Audio[1][i], 1e-4)
	}
}

// rampMel holds its frame index in every band.
func rampMel(mels, frames int) mel.Spectrogram {
	s := make(mel.Spectrogram, mels)
	for m := range s {
		s[m] = make([]float64, frames)
		for f := range s[m] {
			s[m][f] = float64(f)
		}
	}
	return s
}

func fineTuningConfig() config.Config {
	cfg := testConfig()
	cfg.FineTuning = true
	return cfg
}

func TestFineTuningAlignment(t *testing.T) {
	dir := t.TempDir()
	path := writeWav(t, dir, "a.wav", chirp(20000))
	require.NoError(t, mel.SaveNpy(SidecarPath(path), rampMel(80, 78)))
	source := reference(t, path, false)

	d, err := New([]string{path}, fineTuningConfig(), Options{})
	require.NoError(t, err)

	for k := 0; k < 5; k++ {
		ex, err := d.Get(0)
		require.NoError(t, err)
		m := ex.Mel[0]
		require.Equal(t, 32, m.Frames())

		start := int(m[0][0])
		assert.LessOrEqual(t, start, 78-32-1)
		assert.Equal(t, float64(start+31), m[79][31])
		assert.Equal(t, source[start*256:(start+32)*256], ex.Audio[0])
	}
}

func TestFineTuningKeepsGain(t *testing.T) {
	dir := t.TempDir()
	path := writeWav(t, dir, "a.wav", chirp(20000))
	require.NoError(t, mel.SaveNpy(SidecarPath(path), rampMel(80, 78)))

	cfg := fineTuningConfig()
	cfg.Split = false
	d, err := New([]string{path}, cfg, Options{})
	require.NoError(t, err)

	ex, err := d.Get(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, maxAbs(ex.Audio[0]), 1e-3)
	assert.Equal(t, 78, ex.Mel[0].Frames())
}

func TestFineTuningShortAudio(t *testing.T) {
	dir := t.TempDir()
	path := writeWav(t, dir, "a.wav", chirp(4000))
	require.NoError(t, mel.SaveNpy(SidecarPath(path), rampMel(80, 15)))

	d, err := New([]string{path}, fineTuningConfig(), Options{})
	require.NoError(t, err)

	ex, err := d.Get(0)
	require.NoError(t, err)
	assert.Len(t, ex.Audio[0], 32*256)
	require.Equal(t, 32, ex.Mel[0].Frames())
	assert.Equal(t, 14.0, ex.Mel[0][0][14])
	assert.Zero(t, ex.Mel[0][0][15])
}

func TestFineTuningShapeErrors(t *testing.T) {
	dir := t.TempDir()

	few := writeWav(t, dir, "few.wav", chirp(9000))
	require.NoError(t, mel.SaveNpy(SidecarPath(few), rampMel(80, 20)))

	mels := writeWav(t, dir, "mels.wav", chirp(9000))
	require.NoError(t, mel.SaveNpy(SidecarPath(mels), rampMel(40, 40)))

	missing := writeWav(t, dir, "missing.wav", chirp(9000))

	d, err := New([]string{few, mels, missing}, fineTuningConfig(), Options{})
	require.NoError(t, err)

	_, err = d.Get(0)
	assert.ErrorIs(t, err, ErrShape)
	_, err = d.Get(1)
	assert.ErrorIs(t, err, ErrShape)
	_, err = d.Get(2)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "data/a.npy", SidecarPath("data/a.wav"))
	assert.Equal(t, "data.wav/a.npy", SidecarPath("data.wav/a.flac"))
	assert.Equal(t, "a.npy", SidecarPath("a"))
}
