package audio

import (
	"encoding/binary"
	"math"
)

// Telephony audio constants for Twilio media streams: 8 kHz mu-law mono,
// 20ms frames of 160 one-byte samples.
const (
	SampleRate    = 8000
	FrameBytes    = 160 // 20ms of mu-law at 8kHz
	FramePCMBytes = FrameBytes * 2
)

// DecodeMulawSample expands a single G.711 mu-law byte to a linear 16-bit sample.
func DecodeMulawSample(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := (int32(2*int32(mantissa)+33) << (exponent + 2)) - 33
	if sign == 0 {
		sample = -sample
	}
	if sample > math.MaxInt16 {
		sample = math.MaxInt16
	}
	if sample < math.MinInt16 {
		sample = math.MinInt16
	}
	return int16(sample)
}

// DecodeMulaw expands mu-law bytes to little-endian 16-bit PCM. The output is
// exactly twice the length of the input; every input byte is valid.
func DecodeMulaw(data []byte) []byte {
	out := make([]byte, len(data)*2)
	for i, b := range data {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(DecodeMulawSample(b)))
	}
	return out
}

// RMS computes the root-mean-square amplitude of little-endian 16-bit PCM.
func RMS(pcm []byte) float64 {
	count := len(pcm) / 2
	if count == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(count))
}
