package vad

import (
	"github.com/umakanthkeerthi/docai-calling-agent/internal/audio"
)

// Config holds the gate thresholds. Counts are 20ms frames.
type Config struct {
	RMSThreshold      float64 // energy gate on top of the classifier
	StartFrames       int     // consecutive speech frames before a turn opens
	EndSilenceFrames  int     // non-speech frames before a turn closes (~400ms)
	MaxSpeechFrames   int     // hard per-turn cutoff (~15s)
	MaxUtteranceBytes int     // cap on buffered mu-law audio (~20s)
}

// DefaultConfig matches the tuning used on live calls. The RMS gate exists
// because the classifier alone flickers on line noise.
func DefaultConfig() Config {
	return Config{
		RMSThreshold:      300,
		StartFrames:       5,
		EndSilenceFrames:  20,
		MaxSpeechFrames:   750,
		MaxUtteranceBytes: 160000,
	}
}

// Gate segments a mu-law frame stream into utterances. It feeds each 20ms
// frame through the classifier and an RMS energy gate, applies hysteresis on
// the speech/silence counters, and accumulates speaking-state audio into a
// bounded buffer. One Gate belongs to one call session; no locking.
type Gate struct {
	cfg        Config
	classifier Classifier

	pending   []byte // unframed mu-law bytes awaiting a full 160-byte frame
	utterance []byte

	speaking          bool
	speechFrames      int
	silenceFrames     int
	totalSpeechFrames int
}

// NewGate constructs a Gate with the given classifier and thresholds.
func NewGate(classifier Classifier, cfg Config) *Gate {
	return &Gate{cfg: cfg, classifier: classifier}
}

// Speaking reports whether the gate is inside an utterance.
func (g *Gate) Speaking() bool { return g.speaking }

// Feed consumes an arbitrary-length chunk of mu-law audio. When the chunk
// completes an utterance, Feed returns the buffered utterance bytes and true.
// Any audio after the boundary is discarded; the session mutes itself on a
// turn end and clears the gate before listening again.
func (g *Gate) Feed(chunk []byte) ([]byte, bool) {
	g.pending = append(g.pending, chunk...)
	for len(g.pending) >= audio.FrameBytes {
		frame := make([]byte, audio.FrameBytes)
		copy(frame, g.pending[:audio.FrameBytes])
		g.pending = g.pending[audio.FrameBytes:]

		if done := g.processFrame(frame); done {
			utt := g.utterance
			g.utterance = nil
			g.pending = g.pending[:0]
			return utt, true
		}
	}
	return nil, false
}

// processFrame runs one 20ms frame through the gate and returns true at a
// turn boundary.
func (g *Gate) processFrame(frame []byte) bool {
	pcm := audio.DecodeMulaw(frame)

	// Speech only if both the classifier and the energy gate agree.
	isSpeech := g.classifier.IsSpeech(pcm) && audio.RMS(pcm) > g.cfg.RMSThreshold

	if isSpeech {
		g.speechFrames++
		g.silenceFrames = 0
		g.totalSpeechFrames++
	} else {
		g.silenceFrames++
		if !g.speaking {
			g.speechFrames = 0
		}
	}

	if !g.speaking {
		if g.speechFrames > g.cfg.StartFrames {
			g.speaking = true
			g.utterance = append(g.utterance[:0], frame...)
		}
		return false
	}

	// While speaking every frame is buffered, speech or not, up to the cap;
	// past the cap frames are dropped but the counters still advance.
	if len(g.utterance)+len(frame) <= g.cfg.MaxUtteranceBytes {
		g.utterance = append(g.utterance, frame...)
	}

	// A stuck-open line must not buffer forever: force a boundary.
	if g.totalSpeechFrames > g.cfg.MaxSpeechFrames {
		g.endTurn()
		return true
	}
	if g.silenceFrames > g.cfg.EndSilenceFrames {
		g.endTurn()
		return true
	}
	return false
}

func (g *Gate) endTurn() {
	g.speaking = false
	g.speechFrames = 0
	g.silenceFrames = 0
	g.totalSpeechFrames = 0
}

// Reset discards all buffered audio and counters, e.g. when playback of the
// agent's reply completes and listening resumes.
func (g *Gate) Reset() {
	g.pending = g.pending[:0]
	g.utterance = nil
	g.endTurn()
	if d, ok := g.classifier.(*Detector); ok {
		d.Reset()
	}
}
