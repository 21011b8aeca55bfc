// Command checkfiles filters training and validation filelists before training.
//
// Entries whose audio file does not exist are dropped, then entries whose
// decoded length at the configured sampling rate does not exceed segment_size.
// Decoding every file is expensive, so this runs as a separate step.
//
// Usage:
//
//	checkfiles [-c config.yaml] [-j jobs] -o <out_dir> --train <train.txt> --val <val.txt>
//
// The surviving paths are written one per line to <out_dir>/training.txt and
// <out_dir>/validation.txt.
package main
