package wave

import (
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SaveWav saves a mono waveform as 16-bit PCM, clipping to [-1, 1].
func SaveWav(outputFile string, vec []float64, sr int) error {
	return SavePCM(outputFile, [][]float64{vec}, sr, 16)
}

// SavePCM saves channel-major samples in [-1, 1] as integer PCM of the given bit depth (8, 16, 24 or 32).
func SavePCM(outputFile string, channels [][]float64, sr, bitDepth int) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return err
	}

	nch := len(channels)
	frames := 0
	if nch > 0 {
		frames = len(channels[0])
	}
	full := IntNormalizer(bitDepth)
	data := make([]int, frames*nch)
	for c, ch := range channels {
		for i, v := range ch {
			v = math.Max(-1, math.Min(1, v))
			q := int(math.Round(v * full))
			if q > int(full)-1 {
				q = int(full) - 1
			}
			if bitDepth == 8 {
				q += 128
			}
			data[i*nch+c] = q
		}
	}

	enc := wav.NewEncoder(f, sr, bitDepth, nch, wavFormatPCM)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: nch, SampleRate: sr},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveFloat saves channel-major samples unmodified as 32-bit IEEE float WAV.
func SaveFloat(outputFile string, channels [][]float64, sr int) error {
	return saveFloat(outputFile, channels, sr, 32)
}

// SaveFloat64 saves channel-major samples unmodified as 64-bit IEEE float WAV.
func SaveFloat64(outputFile string, channels [][]float64, sr int) error {
	return saveFloat(outputFile, channels, sr, 64)
}

func saveFloat(outputFile string, channels [][]float64, sr, bitDepth int) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return err
	}

	nch := len(channels)
	enc := wav.NewEncoder(f, sr, bitDepth, nch, wavFormatFloat)
	if nch > 0 {
		for i := range channels[0] {
			var frame interface{}
			if bitDepth == 64 {
				v := make([]float64, nch)
				for c := range channels {
					v[c] = channels[c][i]
				}
				frame = v
			} else {
				v := make([]float32, nch)
				for c := range channels {
					v[c] = float32(channels[c][i])
				}
				frame = v
			}
			if err := enc.WriteFrame(frame); err != nil {
				f.Close()
				return err
			}
		}
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
