package mel

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const cacheSize = 32

// BankKey identifies a cached filterbank.
type BankKey struct {
	Fmax   float64
	Device Device
}

type cache struct {
	mu      sync.Mutex
	banks   *lru.Cache[BankKey, *Filterbank]
	windows *lru.Cache[Device, []float64]
}

func newCache() (*cache, error) {
	banks, err := lru.New[BankKey, *Filterbank](cacheSize)
	if err != nil {
		return nil, err
	}
	windows, err := lru.New[Device, []float64](cacheSize)
	if err != nil {
		return nil, err
	}
	return &cache{banks: banks, windows: windows}, nil
}

// Filterbank returns the filterbank ending at fmax, building it on first use.
// The lookup and insert happen under one lock so concurrent callers share a single build.
func (e *Extractor) Filterbank(fmax float64) (*Filterbank, error) {
	key := BankKey{Fmax: fmax, Device: e.Device}

	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()

	if fb, ok := e.cache.banks.Get(key); ok {
		return fb, nil
	}

	fb := NewFilterbank(e.SampleRate, e.NFFT, e.NumMels, e.Fmin, fmax, e.HTK)
	e.cache.banks.Add(key, fb)
	e.logger().Debug("built mel filterbank",
		zap.Float64("fmin", e.Fmin),
		zap.Float64("fmax", fb.Fmax),
		zap.Int("mels", e.NumMels),
		zap.String("device", string(e.Device)))
	return fb, nil
}

// Window returns the analysis window for the extractor's device.
func (e *Extractor) Window() []float64 {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()

	if w, ok := e.cache.windows.Get(e.Device); ok {
		return w
	}
	w := hannWindow(e.WinSize, e.NFFT)
	e.cache.windows.Add(e.Device, w)
	return w
}

// CachedBanks reports how many filterbanks are cached.
func (e *Extractor) CachedBanks() int {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()
	return e.cache.banks.Len()
}
