// Package call orchestrates one phone call over a Twilio media stream:
// inbound mu-law frames feed the voice gate, finished utterances run through
// transcription and the dialogue agent, and the reply is paced back out as
// outbound media followed by a mark.
package call

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/umakanthkeerthi/docai-calling-agent/internal/logs"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/vad"
)

// Transport writes JSON frames back to the caller. *websocket.Conn satisfies
// it directly.
type Transport interface {
	WriteJSON(v interface{}) error
}

// Transcriber converts a buffered mu-law utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, mulaw []byte) (string, error)
}

// Responder produces the agent's reply to one utterance.
type Responder interface {
	Route(ctx context.Context, sessionID, text string) (string, error)
}

// Synthesizer renders reply text as 8kHz mu-law audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Archiver persists a finished call's transcript.
type Archiver interface {
	Archive(ctx context.Context, callSid string, turns []Turn) error
}

// Turn is one entry in the call transcript.
type Turn struct {
	Role string    `json:"role"` // "user" or "agent"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

const (
	greetingText = "Hello. I am your medical assistant. You can speak now."
	fallbackText = "I'm sorry, I'm having trouble right now. Could you repeat that?"
	markName     = "speech_end"

	// Utterances shorter than this are treated as noise and dropped.
	minUtteranceBytes = 800

	outboundChunkBytes = 1024
	outboundChunkPace  = 10 * time.Millisecond

	archiveTimeout = 10 * time.Second
)

// Session drives one call. It is half duplex: inbound audio is only
// processed while listening, and listening resumes when Twilio echoes the
// mark that trails the agent's audio. Events must be fed sequentially.
type Session struct {
	transport   Transport
	gate        *vad.Gate
	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer
	archiver    Archiver
	sink        logs.Sink

	sessionID string
	streamSid string
	callSid   string
	listening bool
	turns     []Turn
	pace      time.Duration
}

func NewSession(transport Transport, gate *vad.Gate, transcriber Transcriber, responder Responder, synthesizer Synthesizer, archiver Archiver, sink logs.Sink) *Session {
	if sink == nil {
		sink = logs.NopSink{}
	}
	return &Session{
		transport:   transport,
		gate:        gate,
		transcriber: transcriber,
		responder:   responder,
		synthesizer: synthesizer,
		archiver:    archiver,
		sink:        sink,
		sessionID:   uuid.NewString(),
		pace:        outboundChunkPace,
	}
}

// ID returns the dialogue session key for this call.
func (s *Session) ID() string { return s.sessionID }

// Transcript returns the turns exchanged so far.
func (s *Session) Transcript() []Turn { return s.turns }

// HandleEvent processes one inbound stream event. It returns true when the
// stream has stopped and the session is finished.
func (s *Session) HandleEvent(ctx context.Context, data []byte) (bool, error) {
	ev, err := decodeEvent(data)
	if err != nil {
		log.Printf("call %s: ignoring malformed event: %v", s.sessionID, err)
		return false, nil
	}

	switch ev.Event {
	case "connected":
		s.sink.Event("info", "media stream connected")

	case "start":
		if ev.Start != nil {
			s.streamSid = ev.Start.StreamSid
			s.callSid = ev.Start.CallSid
		}
		if s.streamSid == "" {
			s.streamSid = ev.StreamSid
		}
		s.sink.Event("info", fmt.Sprintf("call started stream=%s", s.streamSid))
		s.speak(ctx, greetingText)

	case "media":
		if !s.listening || ev.Media == nil {
			return false, nil
		}
		chunk, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
		if err != nil {
			log.Printf("call %s: bad media payload: %v", s.sessionID, err)
			return false, nil
		}
		if utterance, done := s.gate.Feed(chunk); done {
			s.handleUtterance(ctx, utterance)
		}

	case "mark":
		if ev.Mark != nil && ev.Mark.Name == markName {
			s.resumeListening("agent audio played")
		}

	case "stop":
		s.sink.Event("info", "call ended")
		s.archive()
		return true, nil
	}

	return false, nil
}

// handleUtterance runs one caller turn end to end. The mic stays muted from
// here until the reply's trailing mark comes back.
func (s *Session) handleUtterance(ctx context.Context, audio []byte) {
	s.listening = false

	if len(audio) < minUtteranceBytes {
		s.resumeListening("utterance too short")
		return
	}

	text, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		log.Printf("call %s: transcription failed: %v", s.sessionID, err)
		s.resumeListening("transcription failed")
		return
	}
	text = strings.TrimSpace(text)
	if len(text) <= 1 {
		s.resumeListening("empty transcript")
		return
	}

	s.sink.Event("user", text)
	s.turns = append(s.turns, Turn{Role: "user", Text: text, At: time.Now()})

	reply, err := s.responder.Route(ctx, s.sessionID, text)
	if err != nil {
		log.Printf("call %s: agent failed: %v", s.sessionID, err)
		reply = fallbackText
	}

	s.sink.Event("agent", reply)
	s.turns = append(s.turns, Turn{Role: "agent", Text: reply, At: time.Now()})
	s.speak(ctx, reply)
}

// speak synthesizes text and paces it out as media chunks, trailed by a mark
// so Twilio tells us when playback finished. Synthesis failure re-opens the
// mic immediately so the caller is never stuck muted.
func (s *Session) speak(ctx context.Context, text string) {
	audio, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		log.Printf("call %s: synthesis failed: %v", s.sessionID, err)
		s.resumeListening("synthesis failed")
		return
	}
	if len(audio) == 0 {
		s.resumeListening("no audio synthesized")
		return
	}

	for off := 0; off < len(audio); off += outboundChunkBytes {
		end := off + outboundChunkBytes
		if end > len(audio) {
			end = len(audio)
		}
		msg := outboundMedia{
			Event:     "media",
			StreamSid: s.streamSid,
			Media:     mediaChunk{Payload: base64.StdEncoding.EncodeToString(audio[off:end])},
		}
		if err := s.transport.WriteJSON(msg); err != nil {
			log.Printf("call %s: media write failed: %v", s.sessionID, err)
			s.resumeListening("media write failed")
			return
		}
		if s.pace > 0 {
			time.Sleep(s.pace)
		}
	}

	mark := outboundMark{Event: "mark", StreamSid: s.streamSid, Mark: markPayload{Name: markName}}
	if err := s.transport.WriteJSON(mark); err != nil {
		log.Printf("call %s: mark write failed: %v", s.sessionID, err)
		s.resumeListening("mark write failed")
	}
}

func (s *Session) resumeListening(reason string) {
	s.listening = true
	s.gate.Reset()
	s.sink.Event("debug", "listening: "+reason)
}

// archive persists the transcript off the event path so hangup handling is
// never blocked on storage.
func (s *Session) archive() {
	if s.archiver == nil || len(s.turns) == 0 {
		return
	}
	callSid := s.callSid
	turns := append([]Turn{}, s.turns...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archiver.Archive(ctx, callSid, turns); err != nil {
			log.Printf("call %s: transcript archive failed: %v", s.sessionID, err)
		}
	}()
}

func decodeEvent(data []byte) (*inboundEvent, error) {
	var ev inboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("event field missing")
	}
	return &ev, nil
}
