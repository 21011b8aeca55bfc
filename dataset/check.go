package dataset

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neurlang/hifimel/wave"
)

// Checker filters filelists before training.
type Checker struct {
	Loader      *wave.Loader
	SegmentSize int
	// Workers bounds concurrent decodes. Zero uses GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

// CheckFiles drops files that do not exist, then files whose decoded length is
// not above SegmentSize. Undecodable files count as empty. Order is preserved.
func (c *Checker) CheckFiles(ctx context.Context, files []string) ([]string, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		existing = append(existing, f)
	}
	if missing := len(files) - len(existing); missing > 0 {
		logger.Info("files don't exist and have been removed", zap.Int("count", missing))
	}

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	keep := make([]bool, len(existing))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range existing {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := c.Loader.Length(f)
			if err != nil {
				logger.Debug("treating undecodable file as empty", zap.String("path", f), zap.Error(err))
				n = 0
			}
			keep[i] = n > c.SegmentSize
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(existing))
	for i, f := range existing {
		if keep[i] {
			out = append(out, f)
		}
	}
	if short := len(existing) - len(out); short > 0 {
		logger.Info("files are too short and have been removed", zap.Int("count", short))
	}
	return out, nil
}
