package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// wavFormat holds WAV file format information
type wavFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// parseWAV returns the format and the PCM payload of a RIFF/WAVE file
func parseWAV(data []byte) (*wavFormat, []byte, error) {
	reader := bytes.NewReader(data)

	var header struct {
		RIFF [4]byte
		Size uint32
		WAVE [4]byte
	}
	if err := binary.Read(reader, binary.LittleEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("short header: %w", err)
	}
	if string(header.RIFF[:]) != "RIFF" || string(header.WAVE[:]) != "WAVE" {
		return nil, nil, errors.New("not a RIFF/WAVE file")
	}

	var format *wavFormat
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(reader, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil, errors.New("no data chunk")
			}
			return nil, nil, err
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var fmtChunk struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunk.Size < 16 {
				return nil, nil, fmt.Errorf("fmt chunk too small: %d", chunk.Size)
			}
			if err := binary.Read(reader, binary.LittleEndian, &fmtChunk); err != nil {
				return nil, nil, err
			}
			if fmtChunk.AudioFormat != 1 {
				return nil, nil, fmt.Errorf("unsupported audio format %d, need PCM", fmtChunk.AudioFormat)
			}
			format = &wavFormat{
				SampleRate: int(fmtChunk.SampleRate),
				Channels:   int(fmtChunk.Channels),
				BitDepth:   int(fmtChunk.BitsPerSample),
			}
			if _, err := reader.Seek(int64(chunk.Size-16), io.SeekCurrent); err != nil {
				return nil, nil, err
			}
		case "data":
			if format == nil {
				return nil, nil, errors.New("data chunk before fmt chunk")
			}
			if int64(chunk.Size) > int64(reader.Len()) {
				return nil, nil, fmt.Errorf("data chunk truncated: want %d bytes, have %d", chunk.Size, reader.Len())
			}
			samples := make([]byte, chunk.Size)
			if _, err := io.ReadFull(reader, samples); err != nil {
				return nil, nil, err
			}
			return format, samples, nil
		default:
			if _, err := reader.Seek(int64(chunk.Size), io.SeekCurrent); err != nil {
				return nil, nil, err
			}
		}
	}
}

// encodeWAV wraps 16-bit little-endian PCM samples in a WAV container
func encodeWAV(format wavFormat, samples []byte) []byte {
	var buf bytes.Buffer
	blockAlign := format.Channels * format.BitDepth / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(format.BitDepth))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

// Beep generates a mono 16-bit WAV: a tone of the given frequency followed by
// an equal stretch of silence
func Beep(sampleRate int, freq float64, tone time.Duration) []byte {
	n := int(float64(sampleRate) * tone.Seconds())
	samples := make([]byte, 0, 4*n)
	for i := 0; i < n; i++ {
		v := int16(0.4 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		samples = binary.LittleEndian.AppendUint16(samples, uint16(v))
	}
	samples = append(samples, make([]byte, 2*n)...)
	return encodeWAV(wavFormat{SampleRate: sampleRate, Channels: 1, BitDepth: 16}, samples)
}

// DefaultSound is the built-in alarm tone
func DefaultSound() []byte {
	return Beep(44100, 880, 400*time.Millisecond)
}

// LoadSound reads a WAV file, or returns the built-in tone when path is empty
func LoadSound(path string) ([]byte, error) {
	if path == "" {
		return DefaultSound(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sound file: %w", err)
	}
	if _, _, err := parseWAV(data); err != nil {
		return nil, fmt.Errorf("invalid sound file %s: %w", path, err)
	}
	return data, nil
}
