package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/neurlang/hifimel/config"
	"github.com/neurlang/hifimel/mel"
	"github.com/neurlang/hifimel/wave"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "configuration file (YAML or JSON)")
	iterations := pflag.IntP("iterations", "n", mel.DefaultIterations, "Griffin-Lim iterations")
	pflag.Parse()

	if pflag.NArg() < 1 {
		fmt.Println("Usage: towav [-c config.yaml] <npy_file>...")
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

	for _, inputFile := range pflag.Args() {
		outputFile := inputFile + ".wav"
		if err := reconstruct(extractor, inputFile, outputFile, *iterations, cfg.SamplingRate); err != nil {
			logger.Fatal("error generating wave from spectrogram", zap.String("path", inputFile), zap.Error(err))
		}
		logger.Info("wrote wave", zap.String("path", outputFile))
	}
}

func reconstruct(extractor *mel.Extractor, inputFile, outputFile string, iterations, sr int) error {
	spectra, err := mel.LoadNpy(inputFile)
	if err != nil {
		return err
	}

	channels := make([][]float64, len(spectra))
	for i, s := range spectra {
		if channels[i], err = extractor.Invert(s, iterations); err != nil {
			return err
		}
	}
	return wave.SavePCM(outputFile, channels, sr, 16)
}
