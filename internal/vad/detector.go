package vad

import (
	"encoding/binary"
	"math"
)

// Classifier reports whether a single 20ms PCM16LE frame contains speech.
type Classifier interface {
	IsSpeech(pcm []byte) bool
}

// Detector is a statistical speech/silence classifier. It tracks an adaptive
// noise floor and combines an energy ratio with the frame's zero-crossing
// rate; aggressiveness 0-3 raises the energy ratio required to call a frame
// speech (higher = fewer false positives on line noise).
type Detector struct {
	mode       int
	noiseFloor float64
}

// energy ratios over the noise floor, indexed by aggressiveness
var modeRatios = [4]float64{1.3, 1.6, 2.0, 2.5}

// NewDetector creates a Detector with the given aggressiveness (clamped to 0-3).
func NewDetector(aggressiveness int) *Detector {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	return &Detector{mode: aggressiveness, noiseFloor: 150}
}

// IsSpeech classifies one PCM16LE frame. The detector keeps per-session state
// (the noise floor) and is not safe for concurrent use; each call session owns
// its own Detector.
func (d *Detector) IsSpeech(pcm []byte) bool {
	n := len(pcm) / 2
	if n == 0 {
		return false
	}

	var sumSquares float64
	var crossings int
	var prev int16
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(s) * float64(s)
		if i > 0 && ((prev >= 0) != (s >= 0)) {
			crossings++
		}
		prev = s
	}
	rms := math.Sqrt(sumSquares / float64(n))
	zcr := float64(crossings) / float64(n)

	// Voiced speech at 8kHz sits well below a 0.5 crossing rate; pure tones
	// and hiss above it are rejected outright.
	speech := rms > d.noiseFloor*modeRatios[d.mode] && zcr > 0.002 && zcr < 0.5

	if !speech {
		// Slow EMA so brief pauses inside an utterance do not drag the
		// floor up to speech level.
		d.noiseFloor = 0.95*d.noiseFloor + 0.05*rms
		if d.noiseFloor < 1 {
			d.noiseFloor = 1
		}
	}
	return speech
}

// Reset returns the detector to its initial noise floor.
func (d *Detector) Reset() {
	d.noiseFloor = 150
}
