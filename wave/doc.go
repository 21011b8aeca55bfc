// Package wave loads audio files into normalized floating-point waveforms.
//
// Files are identified by their magic bytes, not by their extension:
//   - WAV (8/16-bit PCM, 32-bit IEEE float, 24/32-bit PCM)
//   - FLAC
//   - MP3 and Ogg Vorbis through the slower beep decoders
//
// Samples of integer-typed sources are divided by the full scale of their bit
// depth. Floating-point sources go through a peak heuristic that recognizes data
// which was stored PCM-scaled. When the native rate differs from the target rate
// the waveform is resampled.
package wave
