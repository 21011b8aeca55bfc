package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neurlang/hifimel/config"
	"github.com/neurlang/hifimel/dataset"
	"github.com/neurlang/hifimel/mel"
	"github.com/neurlang/hifimel/wave"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "configuration file (YAML or JSON)")
	jobs := pflag.IntP("jobs", "j", 4, "files processed concurrently")
	half := pflag.Bool("half", false, "store float16 sidecars")
	png := pflag.Bool("png", false, "also write a PNG preview")
	pflag.Parse()

	if pflag.NArg() < 1 {
		fmt.Println("Usage: tomel [-c config.yaml] <audio_file>...")
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

	extractor, err := mel.NewExtractor(mel.FromConfig(*cfg))
	if err != nil {
		logger.Fatal("invalid mel parameters", zap.Error(err))
	}
	extractor.Logger = logger

	loader := wave.NewLoader(cfg.SamplingRate)
	loader.ResampleQuality = cfg.ResampleQuality
	loader.Logger = logger

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(*jobs)
	for _, filename := range pflag.Args() {
		filename := filename
		g.Go(func() error {
			if err := convert(loader, extractor, filename, *half, *png); err != nil {
				return err
			}
			logger.Info("wrote mel sidecar", zap.String("path", dataset.SidecarPath(filename)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal("error generating mel spectrogram", zap.Error(err))
	}
}

func convert(loader *wave.Loader, extractor *mel.Extractor, inputFile string, half, png bool) error {
	w, err := loader.Load(inputFile)
	if err != nil {
		return err
	}
	spectra, err := extractor.MelBatch(w.Channels)
	if err != nil {
		return fmt.Errorf("%s: %w", inputFile, err)
	}

	outputFile := dataset.SidecarPath(inputFile)
	switch {
	case len(spectra) > 1:
		err = mel.SaveNpyBatch(outputFile, spectra)
	case half:
		err = mel.SaveNpyHalf(outputFile, spectra[0])
	default:
		err = mel.SaveNpy(outputFile, spectra[0])
	}
	if err != nil {
		return err
	}

	if png {
		return mel.SavePNG(strings.TrimSuffix(outputFile, ".npy")+".png", spectra[0])
	}
	return nil
}
