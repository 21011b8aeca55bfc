// Command towav converts mel spectrogram sidecars (.npy) back to audio files (WAV).
//
// Since mel spectrograms don't preserve phase information, the reconstruction
// uses Griffin-Lim iterative phase estimation and is only approximate. It is
// meant for listening to training targets, not for synthesis.
//
// Usage:
//
//	towav [-c config.yaml] [-n iterations] <npy_file>...
//
// The output WAV file will be named <npy_file>.wav
package main
