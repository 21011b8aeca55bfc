package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/neurlang/hifimel/config"
	"github.com/neurlang/hifimel/dataset"
	"github.com/neurlang/hifimel/wave"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "configuration file (YAML or JSON)")
	jobs := pflag.IntP("jobs", "j", 0, "concurrent decodes, 0 for GOMAXPROCS")
	outDir := pflag.StringP("out", "o", ".", "output directory")
	train := pflag.String("train", "", "training filelist")
	val := pflag.String("val", "", "validation filelist")
	pflag.Parse()

	if *train == "" || *val == "" {
		fmt.Println("Usage: checkfiles [-c config.yaml] -o <out_dir> --train <file> --val <file>")
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	training, validation, err := dataset.LoadFilelists(*train, *val)
	if err != nil {
		logger.Fatal("error reading filelists", zap.Error(err))
	}

	loader := wave.NewLoader(cfg.SamplingRate)
	loader.ResampleQuality = cfg.ResampleQuality
	loader.Logger = logger

	checker := &dataset.Checker{
		Loader:      loader,
		SegmentSize: cfg.SegmentSize,
		Workers:     *jobs,
		Logger:      logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, list := range []struct {
		name  string
		files []string
	}{
		{"training.txt", training},
		{"validation.txt", validation},
	} {
		kept, err := checker.CheckFiles(ctx, list.files)
		if err != nil {
			logger.Fatal("error checking files", zap.String("list", list.name), zap.Error(err))
		}
		out := filepath.Join(*outDir, list.name)
		if err := writeList(out, kept); err != nil {
			logger.Fatal("error writing filelist", zap.String("path", out), zap.Error(err))
		}
		logger.Info("wrote filelist", zap.String("path", out), zap.Int("files", len(kept)))
	}
}

func writeList(path string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
