package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// BuildWAV creates a simple RIFF/WAVE header for 16-bit PCM and returns the
// concatenated bytes (header + data). sampleRate in Hz, channels, and
// bitsPerSample (commonly 16) populate the header.
func BuildWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)
	return buf.Bytes()
}

// ParseWAV extracts raw PCM16 data and the sample rate from a RIFF/WAVE
// payload. It walks chunks tolerantly so extra metadata chunks before the
// data chunk do not break decoding. Only uncompressed 16-bit PCM is
// supported.
func ParseWAV(b []byte) (pcm []byte, sampleRate int, channels int, err error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("audio: not a RIFF/WAVE payload")
	}
	var haveFmt bool
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if body+size > len(b) {
			size = len(b) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("audio: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(b[body:])
			channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			bits := binary.LittleEndian.Uint16(b[body+14:])
			if format != 1 || bits != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported wav format=%d bits=%d", format, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, 0, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			pcm = b[body : body+size]
			return pcm, sampleRate, channels, nil
		}
		// chunks are word-aligned
		if size%2 == 1 {
			size++
		}
		off = body + size
	}
	return nil, 0, 0, fmt.Errorf("audio: no data chunk found")
}

// DecodeReplyAudio unwraps a base64 reply payload into raw PCM16LE and its
// sample rate. WAV payloads are parsed; bare payloads are assumed to be raw
// PCM16LE at the transport sample rate.
func DecodeReplyAudio(b64 string) (pcm []byte, sampleRate int, err error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode reply payload: %w", err)
	}
	if len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE" {
		pcm, rate, _, perr := ParseWAV(raw)
		if perr != nil {
			return nil, 0, perr
		}
		return pcm, rate, nil
	}
	return raw, DefaultSampleRate, nil
}
