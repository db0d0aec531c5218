package triage

import "sync"

// Decision is the triage outcome for a conversation.
type Decision string

const (
	DecisionPending   Decision = "PENDING"
	DecisionRoutine   Decision = "ROUTINE"
	DecisionEmergency Decision = "EMERGENCY"
	DecisionComplete  Decision = "COMPLETE"
)

// Message roles in the conversation log.
const (
	RoleHuman = "human"
	RoleAgent = "ai"
)

type Message struct {
	Role    string
	Content string
}

// State is the conversation-scoped triage record, keyed by session ID. It is
// mutated only by the engine's nodes and lives for the duration of the call.
type State struct {
	Messages              []Message
	RetrievedProtocols    []string
	DifferentialDiagnosis []string
	SafetyChecklist       []string // pending questions; head is asked next
	InvestigatedSymptoms  []string // questions already asked; never shrinks except on reset
	Decision              Decision
	AssessmentComplete    bool
	FinalResponse         string
}

func newState() *State {
	return &State{Decision: DecisionPending}
}

// agentUtterances returns every reply the agent has spoken so far.
func (s *State) agentUtterances() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Role == RoleAgent {
			out = append(out, m.Content)
		}
	}
	return out
}

func (s *State) appendAgent(text string) {
	s.Messages = append(s.Messages, Message{Role: RoleAgent, Content: text})
	s.FinalResponse = text
}

// stateStore keeps per-conversation state. Map access is guarded; each state
// itself is driven sequentially by its owning session.
type stateStore struct {
	mu     sync.Mutex
	states map[string]*State
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[string]*State)}
}

func (s *stateStore) get(key string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = newState()
		s.states[key] = st
	}
	return st
}

func (s *stateStore) drop(key string) {
	s.mu.Lock()
	delete(s.states, key)
	s.mu.Unlock()
}
