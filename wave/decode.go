package wave

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	dspwav "github.com/mjibson/go-dsp/wav"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// decodeWav reads 8/16-bit PCM and 32-bit float data keeping the stored sample
// type. 64-bit float goes through the go-audio data chunk, other PCM widths and
// extensible headers through go-audio's PCM buffer.
func decodeWav(rs io.ReadSeeker) (raw, error) {
	w, err := dspwav.New(rs)
	if err != nil {
		return decodeWavPCM(rs)
	}
	nch := int(w.NumChannels)
	if nch < 1 {
		return raw{}, errors.New("wav: no channels")
	}

	switch {
	case w.AudioFormat == wavFormatFloat && w.BitsPerSample == 32:
		data, err := readSamples(w)
		if err != nil {
			return raw{}, err
		}
		samples := data.([]float32)
		flat := make([]float64, len(samples))
		for i, v := range samples {
			flat[i] = float64(v)
		}
		return raw{channels: deinterleave(flat, nch), rate: int(w.SampleRate)}, nil

	case w.AudioFormat == wavFormatFloat && w.BitsPerSample == 64:
		return decodeWavFloat64(rs)

	case w.AudioFormat == wavFormatFloat:
		return raw{}, fmt.Errorf("wav: unsupported float width %d", w.BitsPerSample)

	case w.AudioFormat == wavFormatPCM && (w.BitsPerSample == 8 || w.BitsPerSample == 16):
		data, err := readSamples(w)
		if err != nil {
			return raw{}, err
		}
		var flat []float64
		switch samples := data.(type) {
		case []uint8:
			flat = make([]float64, len(samples))
			for i, v := range samples {
				flat[i] = float64(v) - 128
			}
		case []int16:
			flat = make([]float64, len(samples))
			for i, v := range samples {
				flat[i] = float64(v)
			}
		}
		return raw{channels: deinterleave(flat, nch), rate: int(w.SampleRate), bits: int(w.BitsPerSample)}, nil
	}

	return decodeWavPCM(rs)
}

// readSamples reads the whole data chunk. Wav.Samples is rounded down to a
// multiple of 8, so the remainder is read one sample at a time until EOF.
func readSamples(w *dspwav.Wav) (interface{}, error) {
	data, err := w.ReadSamples(w.Samples)
	if err != nil {
		return nil, err
	}
	for {
		tail, err := w.ReadSamples(1)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
		switch d := data.(type) {
		case []uint8:
			data = append(d, tail.([]uint8)...)
		case []int16:
			data = append(d, tail.([]int16)...)
		case []float32:
			data = append(d, tail.([]float32)...)
		}
	}
}

func decodeWavFloat64(rs io.ReadSeeker) (raw, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return raw{}, err
	}
	d := wav.NewDecoder(rs)
	if err := d.FwdToPCM(); err != nil {
		return raw{}, fmt.Errorf("wav: %v", err)
	}
	if d.PCMChunk == nil {
		return raw{}, errors.New("wav: PCM chunk not found")
	}

	samples := make([]float64, d.PCMSize/8)
	if err := binary.Read(d.PCMChunk.R, binary.LittleEndian, samples); err != nil {
		return raw{}, err
	}
	return raw{channels: deinterleave(samples, int(d.NumChans)), rate: int(d.SampleRate)}, nil
}

func decodeWavPCM(rs io.ReadSeeker) (raw, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return raw{}, err
	}
	d := wav.NewDecoder(rs)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return raw{}, fmt.Errorf("wav: %v", err)
		}
		return raw{}, errors.New("wav: invalid file")
	}
	if d.WavAudioFormat == wavFormatFloat {
		return raw{}, fmt.Errorf("wav: unsupported float width %d", d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return raw{}, err
	}
	bits := int(d.BitDepth)
	flat := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		if bits == 8 {
			v -= 128
		}
		flat[i] = float64(v)
	}
	return raw{channels: deinterleave(flat, int(d.NumChans)), rate: int(d.SampleRate), bits: bits}, nil
}

func decodeFlac(r io.Reader) (raw, error) {
	stream, err := flac.New(r)
	if err != nil {
		return raw{}, err
	}
	defer stream.Close()

	nch := int(stream.Info.NChannels)
	channels := make([][]float64, nch)
	for i := range channels {
		channels[i] = make([]float64, 0, stream.Info.NSamples)
	}
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw{}, err
		}
		for ch, sub := range frame.Subframes {
			if ch >= nch {
				break
			}
			for _, s := range sub.Samples {
				channels[ch] = append(channels[ch], float64(s))
			}
		}
	}
	return raw{channels: channels, rate: int(stream.Info.SampleRate), bits: int(stream.Info.BitsPerSample)}, nil
}

func decodeMP3(rc io.ReadCloser) (raw, error) {
	s, format, err := mp3.Decode(rc)
	if err != nil {
		return raw{}, err
	}
	return drain(s, format)
}

func decodeVorbis(rc io.ReadCloser) (raw, error) {
	s, format, err := vorbis.Decode(rc)
	if err != nil {
		return raw{}, err
	}
	return drain(s, format)
}

// drain reads the first channel of a beep stream, which is already scaled to [-1, 1].
func drain(s beep.StreamSeekCloser, format beep.Format) (raw, error) {
	defer s.Close()

	var (
		out []float64
		buf = make([][2]float64, 4096)
	)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, buf[i][0])
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return raw{}, err
	}
	return raw{channels: [][]float64{out}, rate: int(format.SampleRate)}, nil
}

func deinterleave(flat []float64, nch int) [][]float64 {
	if nch < 1 {
		nch = 1
	}
	frames := len(flat) / nch
	channels := make([][]float64, nch)
	for c := range channels {
		channels[c] = make([]float64, frames)
		for i := 0; i < frames; i++ {
			channels[c][i] = flat[i*nch+c]
		}
	}
	return channels
}
