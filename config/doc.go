// Package config holds the preprocessing options shared by the wave, mel, pitch and dataset packages.
//
// Options use the names of the HiFi-GAN training configuration, so an existing config_v1.json
// can be loaded as is (JSON is parsed as YAML and unknown keys are ignored).
package config
