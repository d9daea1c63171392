package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	pcmChannels = 1
	pcmBitDepth = 16
)

var ErrNotWAV = errors.New("not a wav stream")

// EncodeWAV wraps raw 16-bit mono PCM in a RIFF/WAVE container.
func EncodeWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	header, err := wavHeader(len(pcm), sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return fmt.Errorf("build wav header: %w", err)
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav payload: %w", err)
	}
	return nil
}

// Duration reads a WAV header and reports the payload length in seconds.
// Returns ErrNotWAV for anything that is not a RIFF/WAVE stream, so
// callers can fall back to other estimates.
func Duration(data []byte) (float64, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}

	var byteRate uint32
	var dataSize uint32
	haveFmt := false
	haveData := false

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return 0, fmt.Errorf("wav fmt chunk truncated")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
			haveFmt = true
		case "data":
			dataSize = chunkSize
			haveData = true
		}

		if haveFmt && haveData {
			break
		}

		// Chunks are word-aligned.
		skip := int(chunkSize)
		if skip%2 == 1 {
			skip++
		}
		offset = body + skip
	}

	if !haveFmt || !haveData {
		return 0, fmt.Errorf("wav missing fmt or data chunk")
	}
	if byteRate == 0 {
		return 0, fmt.Errorf("wav byte rate is zero")
	}

	return float64(dataSize) / float64(byteRate), nil
}

// PCMDuration reports the length in seconds of raw 16-bit mono PCM.
func PCMDuration(n, sampleRate int) float64 {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	return float64(n) / float64(sampleRate*pcmChannels*pcmBitDepth/8)
}

// Silence returns n seconds of silent 16-bit mono PCM.
func Silence(seconds float64, sampleRate int) []byte {
	if seconds <= 0 || sampleRate <= 0 {
		return nil
	}
	samples := int(seconds * float64(sampleRate))
	return make([]byte, samples*pcmBitDepth/8)
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	buf.WriteString("RIFF")
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	fields := []any{
		uint32(16),
		uint16(1),
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
	}
	for _, v := range fields {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString("data")
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
