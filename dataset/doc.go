// Package dataset indexes audio files and produces fixed-size (mel, audio)
// training examples from them.
//
// A Dataset is safe for concurrent use but serializes Get calls, since the
// decode cache and the random source are shared.
package dataset
