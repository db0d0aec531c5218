// Package booking walks a caller through appointment scheduling after the
// clinical interview has reached a decision. It is a deterministic stage
// machine; no model calls are involved.
package booking

import (
	"fmt"
	"strings"
	"sync"
)

// Stage of a booking conversation.
type Stage string

const (
	StageInitial      Stage = "initial"
	StageEmergencyAsk Stage = "emergency_ask"
	StageBookingAsk   Stage = "booking_ask"
	StageDateAsk      Stage = "date_ask"
	StageSlotAsk      Stage = "slot_ask"
	StageComplete     Stage = "complete"
)

const (
	doctorName     = "Dr. Smith"
	availableSlots = "9 AM, 10 AM, 3 PM"
	goodbyeText    = "Our conversation is complete. Goodbye."
)

// Result of one booking turn.
type Result struct {
	Response string
	Stage    Stage
	Done     bool
}

type session struct {
	stage     Stage
	emergency bool
	day       string
}

// Engine keeps per-conversation booking sessions, keyed the same way as the
// clinical interview.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewEngine() *Engine {
	return &Engine{sessions: make(map[string]*session)}
}

func (e *Engine) session(key string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[key]
	if !ok {
		s = &session{stage: StageInitial}
		e.sessions[key] = s
	}
	return s
}

// Forget discards the session for a finished conversation.
func (e *Engine) Forget(key string) {
	e.mu.Lock()
	delete(e.sessions, key)
	e.mu.Unlock()
}

// Start opens the booking dialogue for a session. Emergency conversations
// get the urgent-care prompt, routine ones the plain booking offer. Calling
// Start on an already-started session just replays the current stage via an
// empty-input Invoke.
func (e *Engine) Start(key string, emergency bool) *Result {
	s := e.session(key)
	if s.stage != StageInitial {
		return e.Invoke(key, "")
	}
	s.emergency = emergency
	if emergency {
		s.stage = StageEmergencyAsk
		return &Result{
			Response: fmt.Sprintf("This sounds like it may be an emergency. Please call your local emergency number right away. Would you also like me to book an urgent appointment with %s?", doctorName),
			Stage:    s.stage,
		}
	}
	s.stage = StageBookingAsk
	return &Result{
		Response: fmt.Sprintf("Would you like to book an appointment with %s?", doctorName),
		Stage:    s.stage,
	}
}

// Invoke advances the booking dialogue one turn. The complete stage is
// terminal; further turns only repeat the goodbye.
func (e *Engine) Invoke(key, userText string) *Result {
	s := e.session(key)

	switch s.stage {
	case StageInitial:
		// Not started; treat as a routine booking offer.
		return e.Start(key, false)

	case StageEmergencyAsk:
		s.stage = StageComplete
		if isAffirmative(userText, "yes", "sure", "okay") {
			return &Result{
				Response: fmt.Sprintf("Understood. I have booked an urgent appointment with %s. Please seek immediate care. Goodbye.", doctorName),
				Stage:    s.stage,
				Done:     true,
			}
		}
		return &Result{
			Response: "Understood. Please seek emergency care right away. Goodbye.",
			Stage:    s.stage,
			Done:     true,
		}

	case StageBookingAsk:
		if isAffirmative(userText, "yes", "sure", "book") {
			s.stage = StageDateAsk
			return &Result{
				Response: "Great. What day would you like to come in?",
				Stage:    s.stage,
			}
		}
		s.stage = StageComplete
		return &Result{
			Response: "Alright. Take care and feel free to call back any time. Goodbye.",
			Stage:    s.stage,
			Done:     true,
		}

	case StageDateAsk:
		s.day = strings.TrimSpace(userText)
		if s.day == "" {
			s.day = "that day"
		}
		s.stage = StageSlotAsk
		return &Result{
			Response: fmt.Sprintf("We have openings at %s on %s. Which time works for you?", availableSlots, s.day),
			Stage:    s.stage,
		}

	case StageSlotAsk:
		slot := strings.TrimSpace(userText)
		if slot == "" {
			slot = "the next available time"
		}
		s.stage = StageComplete
		return &Result{
			Response: fmt.Sprintf("You're booked with %s on %s at %s. See you then. Goodbye.", doctorName, s.day, slot),
			Stage:    s.stage,
			Done:     true,
		}

	default: // StageComplete
		return &Result{Response: goodbyeText, Stage: StageComplete, Done: true}
	}
}

func isAffirmative(text string, words ...string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
