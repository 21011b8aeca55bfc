// Command tomel computes mel spectrograms of audio files and stores them as
// NumPy sidecars next to the audio, for fine-tuning datasets.
//
// Usage:
//
//	tomel [-c config.yaml] [-j jobs] [--half] [--png] <audio_file>...
//
// Each input <name>.<ext> produces <name>.npy holding a (mels, frames) array for
// mono input or (channels, mels, frames) otherwise. With --png a preview image
// <name>.png is written as well.
//
// Supported input formats: .wav, .flac, .mp3, .ogg
package main
