// Package agent routes caller utterances between the clinical triage
// interview and the appointment booking dialogue.
package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/umakanthkeerthi/docai-calling-agent/internal/booking"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/triage"
)

// Clinical runs one triage turn per utterance.
type Clinical interface {
	Invoke(ctx context.Context, sessionID, text string) (*triage.Result, error)
	Forget(sessionID string)
}

// Booker runs the booking stage machine.
type Booker interface {
	Start(key string, emergency bool) *booking.Result
	Invoke(key, text string) *booking.Result
	Forget(key string)
}

const conversationOverText = "Our conversation is complete. Goodbye."

// Conversation tracks where a single caller is in the overall dialogue. The
// switch into booking mode is one way; once flipped the clinical interview is
// never consulted again.
type Conversation struct {
	SessionID        string
	BookingSessionID string
	BookingMode      bool
	Decision         triage.Decision
	bookingDone      bool
}

// Router owns the per-conversation mode switch between triage and booking.
type Router struct {
	clinical Clinical
	booker   Booker

	mu    sync.Mutex
	convs map[string]*Conversation
}

func NewRouter(clinical Clinical, booker Booker) *Router {
	return &Router{clinical: clinical, booker: booker, convs: make(map[string]*Conversation)}
}

func (r *Router) conversation(sessionID string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[sessionID]
	if !ok {
		c = &Conversation{SessionID: sessionID, Decision: triage.DecisionPending}
		r.convs[sessionID] = c
	}
	return c
}

// Decision reports the conversation's current triage decision. After the
// booking handoff it stays frozen at the value that triggered the handoff.
func (r *Router) Decision(sessionID string) triage.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[sessionID]; ok {
		return c.Decision
	}
	return triage.DecisionPending
}

// Route produces the agent's reply to one caller utterance. Emergencies and
// completed assessments hand the conversation off to booking; the triage
// summary (empty on the emergency path) is prefixed to the first booking
// prompt so the caller hears both in one reply.
func (r *Router) Route(ctx context.Context, sessionID, text string) (string, error) {
	c := r.conversation(sessionID)

	if c.bookingDone {
		return conversationOverText, nil
	}

	if c.BookingMode {
		res := r.booker.Invoke(c.BookingSessionID, text)
		if res.Done {
			c.bookingDone = true
		}
		return res.Response, nil
	}

	tr, err := r.clinical.Invoke(ctx, sessionID, text)
	if err != nil {
		return "", err
	}
	c.Decision = tr.Decision

	if tr.Decision == triage.DecisionEmergency || tr.AssessmentComplete {
		c.BookingMode = true
		c.BookingSessionID = uuid.NewString()
		br := r.booker.Start(c.BookingSessionID, tr.Decision == triage.DecisionEmergency)
		if br.Done {
			c.bookingDone = true
		}
		if tr.Response == "" {
			return br.Response, nil
		}
		return tr.Response + " " + br.Response, nil
	}

	return tr.Response, nil
}

// End releases all state held for a conversation.
func (r *Router) End(sessionID string) {
	r.mu.Lock()
	c, ok := r.convs[sessionID]
	delete(r.convs, sessionID)
	r.mu.Unlock()

	r.clinical.Forget(sessionID)
	if ok && c.BookingSessionID != "" {
		r.booker.Forget(c.BookingSessionID)
	}
}
