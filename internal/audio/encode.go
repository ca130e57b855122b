package audio

import (
	"encoding/base64"
	"encoding/binary"
)

// EncodeFrame quantizes float32 samples to little-endian PCM16. Every
// sample is first clamped to [-1, 1]; the scaled value is then saturated at
// the int16 limits so extremes pin instead of wrapping around.
func EncodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int32(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// EncodeFrameBase64 packs samples as PCM16LE and base64-encodes the result
// for channels that carry audio inside JSON messages.
func EncodeFrameBase64(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodeFrame(samples))
}
