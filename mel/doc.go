// Package mel computes log-compressed mel spectrograms for vocoder training.
//
// The pipeline follows the HiFi-GAN front end:
//   - reflect padding by (n_fft-hop)/2 on both ends, then a non-centered STFT
//   - magnitude sqrt(re²+im²+1e-9) over the one-sided spectrum
//   - projection through a Slaney-normalized mel filterbank
//   - dynamic range compression log(max(x, 1e-5))
//
// Filterbanks and analysis windows are built lazily and cached per Extractor,
// keyed by (fmax, device) and by device. Spectrograms can be approximately
// inverted with Griffin-Lim and stored as NumPy .npy sidecar files.
package mel
