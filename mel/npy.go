package mel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sbinet/npyio/npy"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"
)

// ErrNpy is returned for .npy files that do not hold a mel spectrogram.
var ErrNpy = errors.New("unsupported npy sidecar")

// LoadNpy reads mel spectrograms from a .npy file. A (mels, frames) array yields
// one spectrogram and a (batch, mels, frames) array yields one per batch entry.
// Float16, float32 and float64 little-endian data are accepted.
func LoadNpy(path string) ([]Spectrogram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npy.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNpy, path, err)
	}

	descr := r.Header.Descr
	if descr.Fortran {
		return nil, fmt.Errorf("%w: %s: fortran order", ErrNpy, path)
	}

	var batch, mels, frames int
	switch len(descr.Shape) {
	case 2:
		batch, mels, frames = 1, descr.Shape[0], descr.Shape[1]
	case 3:
		batch, mels, frames = descr.Shape[0], descr.Shape[1], descr.Shape[2]
	default:
		return nil, fmt.Errorf("%w: %s: shape %v", ErrNpy, path, descr.Shape)
	}
	n := batch * mels * frames

	var data []float64
	switch descr.Type {
	case "<f8":
		if err := r.Read(&data); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNpy, path, err)
		}
	case "<f4":
		var raw []float32
		if err := r.Read(&raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNpy, path, err)
		}
		data = make([]float64, len(raw))
		for i, v := range raw {
			data[i] = float64(v)
		}
	case "<f2":
		data, err = readHalf(f, n)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNpy, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: dtype %s", ErrNpy, path, descr.Type)
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %s: %d values for shape %v", ErrNpy, path, len(data), descr.Shape)
	}

	out := make([]Spectrogram, batch)
	for b := range out {
		s := make(Spectrogram, mels)
		for m := range s {
			off := (b*mels + m) * frames
			s[m] = append([]float64(nil), data[off:off+frames]...)
		}
		out[b] = s
	}
	return out, nil
}

// readHalf reads the trailing n float16 values of an .npy file.
func readHalf(f *os.File, n int) ([]float64, error) {
	if _, err := f.Seek(-2*int64(n), io.SeekEnd); err != nil {
		return nil, err
	}
	bits := make([]uint16, n)
	if err := binary.Read(f, binary.LittleEndian, bits); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, b := range bits {
		out[i] = float64(float16.Frombits(b).Float32())
	}
	return out, nil
}

// SaveNpy writes s as a (mels, frames) float64 array.
func SaveNpy(path string, s Spectrogram) error {
	if s.Frames() == 0 {
		return fmt.Errorf("%w: empty spectrogram", ErrNpy)
	}
	m := mat.NewDense(s.NumMels(), s.Frames(), nil)
	for i, row := range s {
		m.SetRow(i, row)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := npy.Write(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveNpyHalf writes s as a (mels, frames) float16 array.
func SaveNpyHalf(path string, s Spectrogram) error {
	if s.Frames() == 0 {
		return fmt.Errorf("%w: empty spectrogram", ErrNpy)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeHalf(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveNpyBatch writes ss as a (batch, mels, frames) float64 array. All
// spectrograms must have the same shape.
func SaveNpyBatch(path string, ss []Spectrogram) error {
	if len(ss) == 0 || ss[0].Frames() == 0 {
		return fmt.Errorf("%w: empty batch", ErrNpy)
	}
	mels, frames := ss[0].NumMels(), ss[0].Frames()
	values := make([]float64, 0, len(ss)*mels*frames)
	for i, s := range ss {
		if s.NumMels() != mels || s.Frames() != frames {
			return fmt.Errorf("%w: batch entry %d is %dx%d, want %dx%d", ErrNpy, i, s.NumMels(), s.Frames(), mels, frames)
		}
		for _, row := range s {
			values = append(values, row...)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = writeHeader(f, "<f8", fmt.Sprintf("(%d, %d, %d)", len(ss), mels, frames))
	if err == nil {
		err = binary.Write(f, binary.LittleEndian, values)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeHeader writes a version 1.0 header: magic, version, header length and a
// dict padded with spaces to a 64 byte boundary and terminated by a newline.
func writeHeader(w io.Writer, descr, shape string) error {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shape)
	if rem := (10 + len(dict) + 1) % 64; rem != 0 {
		dict += strings.Repeat(" ", 64-rem)
	}
	dict += "\n"

	header := append([]byte("\x93NUMPY\x01\x00"), 0, 0)
	binary.LittleEndian.PutUint16(header[8:], uint16(len(dict)))
	_, err := w.Write(append(header, dict...))
	return err
}

func writeHalf(w io.Writer, s Spectrogram) error {
	if err := writeHeader(w, "<f2", fmt.Sprintf("(%d, %d)", s.NumMels(), s.Frames())); err != nil {
		return err
	}

	bits := make([]uint16, 0, s.NumMels()*s.Frames())
	for _, row := range s {
		for _, v := range row {
			bits = append(bits, float16.Fromfloat32(float32(v)).Bits())
		}
	}
	return binary.Write(w, binary.LittleEndian, bits)
}
