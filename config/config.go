package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for inconsistent options.
var ErrInvalid = errors.New("invalid config")

// Config stores the recognized preprocessing options.
type Config struct {
	SamplingRate int     `yaml:"sampling_rate"`
	NFFT         int     `yaml:"n_fft"`
	NumMels      int     `yaml:"num_mels"`
	HopSize      int     `yaml:"hop_size"`
	WinSize      int     `yaml:"win_size"`
	Fmin         float64 `yaml:"fmin"`
	// Fmax of 0 selects the Nyquist frequency.
	Fmax     float64 `yaml:"fmax"`
	FmaxLoss float64 `yaml:"fmax_loss"`

	SegmentSize   int  `yaml:"segment_size"`
	Split         bool `yaml:"split"`
	Shuffle       bool `yaml:"shuffle"`
	NCacheReuse   int  `yaml:"n_cache_reuse"`
	FineTuning    bool `yaml:"fine_tuning"`
	TrimNonVoiced bool `yaml:"trim_non_voiced"`

	Device          string `yaml:"device"`
	ResampleQuality int    `yaml:"resample_quality"`
	LogLevel        string `yaml:"log_level"`
}

// Default returns the HiFi-GAN V1 settings.
func Default() Config {
	return Config{
		SamplingRate:    22050,
		NFFT:            1024,
		NumMels:         80,
		HopSize:         256,
		WinSize:         1024,
		Fmin:            0,
		Fmax:            8000,
		SegmentSize:     8192,
		Split:           true,
		Shuffle:         true,
		NCacheReuse:     0,
		Device:          "cpu",
		ResampleQuality: 4,
		LogLevel:        "info",
	}
}

// Load reads the configuration from the given file path. Keys missing from the
// file keep their Default values.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return cfg, nil
}

// LoadOrDefault loads filePath, or returns Default when filePath is empty.
func LoadOrDefault(filePath string) (*Config, error) {
	if filePath == "" {
		cfg := Default()
		return &cfg, nil
	}
	return Load(filePath)
}

// Parse decodes YAML or JSON configuration data on top of Default and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the options describe a usable analysis setup.
func (c *Config) Validate() error {
	switch {
	case c.SamplingRate <= 0:
		return fmt.Errorf("%w: sampling_rate must be positive, got %d", ErrInvalid, c.SamplingRate)
	case c.NFFT <= 0:
		return fmt.Errorf("%w: n_fft must be positive, got %d", ErrInvalid, c.NFFT)
	case c.NumMels <= 0:
		return fmt.Errorf("%w: num_mels must be positive, got %d", ErrInvalid, c.NumMels)
	case c.HopSize <= 0:
		return fmt.Errorf("%w: hop_size must be positive, got %d", ErrInvalid, c.HopSize)
	case c.WinSize <= 0 || c.WinSize > c.NFFT:
		return fmt.Errorf("%w: win_size must be in [1, n_fft], got %d", ErrInvalid, c.WinSize)
	case c.HopSize > c.NFFT:
		return fmt.Errorf("%w: hop_size %d exceeds n_fft %d", ErrInvalid, c.HopSize, c.NFFT)
	case c.Fmin < 0:
		return fmt.Errorf("%w: fmin must not be negative", ErrInvalid)
	case c.Fmax < 0 || c.Fmax > float64(c.SamplingRate)/2:
		return fmt.Errorf("%w: fmax %g outside [0, %d]", ErrInvalid, c.Fmax, c.SamplingRate/2)
	case c.Fmax != 0 && c.Fmin >= c.Fmax:
		return fmt.Errorf("%w: fmin %g must be below fmax %g", ErrInvalid, c.Fmin, c.Fmax)
	case c.FmaxLoss < 0 || c.FmaxLoss > float64(c.SamplingRate)/2:
		return fmt.Errorf("%w: fmax_loss %g outside [0, %d]", ErrInvalid, c.FmaxLoss, c.SamplingRate/2)
	case c.SegmentSize <= 0:
		return fmt.Errorf("%w: segment_size must be positive, got %d", ErrInvalid, c.SegmentSize)
	case c.NCacheReuse < 0:
		return fmt.Errorf("%w: n_cache_reuse must not be negative", ErrInvalid)
	case c.ResampleQuality < 1 || c.ResampleQuality > 64:
		return fmt.Errorf("%w: resample_quality must be in [1, 64], got %d", ErrInvalid, c.ResampleQuality)
	}
	return nil
}

// NewLogger creates a zap logger for the configured log level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	var zapConfig zap.Config
	switch c.LogLevel {
	case "debug":
		zapConfig = zap.NewDevelopmentConfig()
	case "warn":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create zap logger: %w", err)
	}
	return logger, nil
}
