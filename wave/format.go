package wave

import "bytes"

// Format identifies an audio container.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatFLAC
	FormatMP3
	FormatOgg
)

// SniffLen is the number of leading bytes Sniff looks at.
const SniffLen = 12

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatFLAC:
		return "flac"
	case FormatMP3:
		return "mp3"
	case FormatOgg:
		return "ogg"
	}
	return "unknown"
}

// Sniff identifies the container from the leading bytes of a file.
func Sniff(header []byte) Format {
	switch {
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(header, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(header, []byte("OggS")):
		return FormatOgg
	case bytes.HasPrefix(header, []byte("ID3")):
		return FormatMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3
	}
	return FormatUnknown
}
