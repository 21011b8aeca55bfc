package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 22050, cfg.SamplingRate)
	assert.Equal(t, 8192, cfg.SegmentSize)
}

func TestLoadHiFiGANJSON(t *testing.T) {
	const data = `{
    "resblock": "1",
    "segment_size": 8192,
    "num_mels": 80,
    "n_fft": 1024,
    "hop_size": 256,
    "win_size": 1024,
    "sampling_rate": 22050,
    "fmin": 0,
    "fmax": 8000,
    "fmax_loss": null,
    "fine_tuning": true
}`
	path := filepath.Join(t.TempDir(), "config_v1.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.NumMels)
	assert.Equal(t, 0.0, cfg.FmaxLoss)
	assert.True(t, cfg.FineTuning)
	// keys absent from the file keep defaults
	assert.True(t, cfg.Split)
	assert.Equal(t, "cpu", cfg.Device)
}

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte("sampling_rate: 16000\nfmax: 7600\nn_cache_reuse: 3\ntrim_non_voiced: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.SamplingRate)
	assert.Equal(t, 7600.0, cfg.Fmax)
	assert.Equal(t, 3, cfg.NCacheReuse)
	assert.True(t, cfg.TrimNonVoiced)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"zero sampling rate":    func(c *Config) { c.SamplingRate = 0 },
		"window above n_fft":    func(c *Config) { c.WinSize = 2048 },
		"fmax above nyquist":    func(c *Config) { c.Fmax = 20000 },
		"fmin above fmax":       func(c *Config) { c.Fmin = 9000 },
		"negative cache reuse":  func(c *Config) { c.NCacheReuse = -1 },
		"bad resample quality":  func(c *Config) { c.ResampleQuality = 0 },
		"zero segment size":     func(c *Config) { c.SegmentSize = 0 },
		"hop larger than n_fft": func(c *Config) { c.HopSize = 4096 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		cfg := Default()
		cfg.LogLevel = level
		logger, err := cfg.NewLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}
