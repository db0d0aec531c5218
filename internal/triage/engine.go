package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/umakanthkeerthi/docai-calling-agent/internal/llm"
)

// Completer produces completions from a language model. CompleteJSON asks the
// model for a JSON object response.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// Retriever fetches protocol passages relevant to the patient's report.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// Result is what one triage turn hands back to the caller.
type Result struct {
	Response           string
	Decision           Decision
	AssessmentComplete bool
}

const (
	maxInvestigated = 6
	maxDiagnoses    = 4
	historyWindow   = 20
	retrievalDepth  = 3
)

const clarifyRepromptText = "I'm sorry, could you tell me a bit more about your symptoms?"

var errDiagnosisUnavailable = errors.New("triage: initial diagnosis unavailable")

// Engine runs the clinical interview. Each Invoke advances one turn through
// the emergency scan, protocol retrieval, the diagnostician and the
// strategist, and returns the agent's next utterance.
type Engine struct {
	llm       Completer
	retriever Retriever
	store     *stateStore
}

func NewEngine(completer Completer, retriever Retriever) *Engine {
	return &Engine{llm: completer, retriever: retriever, store: newStateStore()}
}

// StateFor exposes the conversation state for a session, creating it if
// needed.
func (e *Engine) StateFor(sessionID string) *State {
	return e.store.get(sessionID)
}

// Forget discards the state for a finished session.
func (e *Engine) Forget(sessionID string) {
	e.store.drop(sessionID)
}

// Invoke runs one turn of the interview for the given session.
func (e *Engine) Invoke(ctx context.Context, sessionID, userText string) (*Result, error) {
	st := e.store.get(sessionID)
	st.Messages = append(st.Messages, Message{Role: RoleHuman, Content: userText})

	if e.scanEmergency(ctx, userText) {
		st.Decision = DecisionEmergency
		st.FinalResponse = ""
		return &Result{Decision: DecisionEmergency, AssessmentComplete: st.AssessmentComplete}, nil
	}
	if st.Decision == DecisionPending && len(st.SafetyChecklist) == 0 && len(st.InvestigatedSymptoms) == 0 {
		st.Decision = DecisionRoutine
	}

	docs, err := e.retriever.Query(ctx, userText, retrievalDepth)
	if err != nil {
		log.Printf("triage: retrieval failed, continuing without protocols: %v", err)
		docs = nil
	}
	st.RetrievedProtocols = docs

	if err := e.diagnose(ctx, st); err != nil {
		st.appendAgent(clarifyRepromptText)
		return &Result{Response: st.FinalResponse, Decision: st.Decision, AssessmentComplete: st.AssessmentComplete}, nil
	}

	e.strategize(ctx, st)
	return &Result{Response: st.FinalResponse, Decision: st.Decision, AssessmentComplete: st.AssessmentComplete}, nil
}

type emergencyVerdict struct {
	IsEmergency bool `json:"is_emergency"`
}

// scanEmergency classifies the latest utterance. Classification failures fall
// back to non-emergency so the interview keeps going.
func (e *Engine) scanEmergency(ctx context.Context, userText string) bool {
	prompt := fmt.Sprintf(`You are an emergency triage classifier for a medical call line.
Decide whether the caller's message describes a life-threatening emergency
(severe chest pain with radiation, inability to breathe, stroke signs,
uncontrolled bleeding, loss of consciousness, suicidal intent).

Caller message: %q

Respond with JSON only: {"is_emergency": true} or {"is_emergency": false}`, userText)

	out, err := e.llm.CompleteJSON(ctx, prompt)
	if err != nil {
		log.Printf("triage: emergency scan failed, assuming routine: %v", err)
		return false
	}
	raw, ok := llm.ExtractJSONObject(out)
	if !ok {
		log.Printf("triage: emergency scan returned no JSON, assuming routine")
		return false
	}
	var v emergencyVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Printf("triage: emergency scan unparseable, assuming routine: %v", err)
		return false
	}
	return v.IsEmergency
}

type initialDiagnosis struct {
	DifferentialDiagnosis []string `json:"differential_diagnosis"`
	NewQuestions          []string `json:"new_questions"`
}

type followUpDiagnosis struct {
	DifferentialDiagnosis []string `json:"differential_diagnosis"`
	NewQuestionsToAdd     []string `json:"new_questions_to_add"`
	StopAsking            bool     `json:"stop_asking"`
}

// diagnose maintains the differential diagnosis and the safety checklist. On
// the first pass it builds both from scratch; afterwards it refines the
// checklist, consuming the question just answered.
func (e *Engine) diagnose(ctx context.Context, st *State) error {
	if len(st.InvestigatedSymptoms) > maxInvestigated {
		st.Decision = DecisionComplete
		st.SafetyChecklist = nil
		return nil
	}

	forbidden := append(append([]string{}, st.InvestigatedSymptoms...), st.agentUtterances()...)

	if len(st.SafetyChecklist) == 0 {
		prompt := fmt.Sprintf(`You are a careful physician starting a triage interview.

Conversation so far:
%s

Relevant protocol excerpts:
%s

Produce at most %d likely diagnoses and the safety questions needed to
narrow them down. Do not repeat anything already asked.

Respond with JSON only:
{"differential_diagnosis": ["..."], "new_questions": ["..."]}`,
			formatHistory(st.Messages), formatDocs(st.RetrievedProtocols), maxDiagnoses)

		var parsed initialDiagnosis
		if err := e.completeInto(ctx, prompt, &parsed); err != nil {
			log.Printf("triage: initial diagnosis failed: %v", err)
			return errDiagnosisUnavailable
		}
		if len(parsed.DifferentialDiagnosis) > maxDiagnoses {
			parsed.DifferentialDiagnosis = parsed.DifferentialDiagnosis[:maxDiagnoses]
		}
		st.DifferentialDiagnosis = parsed.DifferentialDiagnosis
		st.SafetyChecklist = PruneDuplicates(parsed.NewQuestions, forbidden)
		st.Decision = DecisionPending
		return nil
	}

	justAsked := st.SafetyChecklist[0]
	remaining := append([]string{}, st.SafetyChecklist[1:]...)
	pruned := PruneDuplicates(remaining, forbidden)

	prompt := fmt.Sprintf(`You are a careful physician continuing a triage interview.

Conversation so far:
%s

Relevant protocol excerpts:
%s

Current diagnoses: %s
Question just answered: %q
Questions still queued:
%s

Refine the diagnoses, add any newly needed safety questions, and decide
whether enough has been asked to wrap up.

Respond with JSON only:
{"differential_diagnosis": ["..."], "new_questions_to_add": ["..."], "stop_asking": false}`,
		formatHistory(st.Messages), formatDocs(st.RetrievedProtocols),
		strings.Join(st.DifferentialDiagnosis, "; "), justAsked, formatList(pruned))

	var parsed followUpDiagnosis
	if err := e.completeInto(ctx, prompt, &parsed); err != nil {
		log.Printf("triage: follow-up diagnosis failed, keeping checklist: %v", err)
		st.SafetyChecklist = remaining
		return nil
	}

	if len(parsed.DifferentialDiagnosis) > 0 {
		if len(parsed.DifferentialDiagnosis) > maxDiagnoses {
			parsed.DifferentialDiagnosis = parsed.DifferentialDiagnosis[:maxDiagnoses]
		}
		st.DifferentialDiagnosis = parsed.DifferentialDiagnosis
	}

	added := PruneDuplicates(parsed.NewQuestionsToAdd, append(forbidden, pruned...))
	updated := append(pruned, added...)
	if parsed.StopAsking || len(updated) == 0 {
		st.Decision = DecisionComplete
		st.SafetyChecklist = nil
		return nil
	}
	st.SafetyChecklist = updated
	st.Decision = DecisionPending
	return nil
}

// Intent of the caller's latest message relative to the pending question.
const (
	intentAnswer     = "ANSWER"
	intentRestart    = "RESTART"
	intentClarify    = "CLARIFY"
	intentIrrelevant = "IRRELEVANT"
)

// strategize turns the diagnostician's output into the agent's next
// utterance. With an empty checklist it produces the closing summary;
// otherwise it interprets the caller's intent and asks the next question.
func (e *Engine) strategize(ctx context.Context, st *State) {
	if len(st.SafetyChecklist) == 0 {
		st.Decision = DecisionComplete
		st.AssessmentComplete = true
		st.appendAgent(e.summarize(ctx, st))
		return
	}

	lastUser := lastHumanMessage(st.Messages)
	next := st.SafetyChecklist[0]

	switch e.classifyIntent(ctx, lastUser, next) {
	case intentRestart:
		st.DifferentialDiagnosis = nil
		st.SafetyChecklist = nil
		st.InvestigatedSymptoms = nil
		st.Decision = DecisionPending
		st.appendAgent("Of course, let's start over. Please describe your symptoms from the beginning.")
	case intentClarify:
		// Restate what was actually asked last turn, not the upcoming
		// question the caller has never heard.
		asked := lastAgentMessage(st.Messages)
		if asked == "" {
			asked = next
		}
		st.appendAgent(e.clarify(ctx, asked))
	case intentIrrelevant:
		st.appendAgent("Let's stay focused on your health so I can help you. " + next)
	default: // ANSWER
		if !contains(st.InvestigatedSymptoms, next) {
			st.InvestigatedSymptoms = append(st.InvestigatedSymptoms, next)
		}
		st.appendAgent(next)
	}
}

// summarize produces the closing assessment. A template stands in if the
// model is unavailable.
func (e *Engine) summarize(ctx context.Context, st *State) string {
	diagnoses := strings.Join(st.DifferentialDiagnosis, ", ")
	if diagnoses == "" {
		diagnoses = "no specific condition identified"
	}
	prompt := fmt.Sprintf(`You are a physician closing a triage interview.

Conversation so far:
%s

Working diagnoses: %s
Relevant protocol excerpts:
%s

Give the caller a short, plain-language summary of the likely condition and
sensible next steps. Two or three sentences, no lists, no medical jargon.`,
		formatHistory(st.Messages), diagnoses, formatDocs(st.RetrievedProtocols))

	out, err := e.llm.Complete(ctx, prompt)
	if err != nil || strings.TrimSpace(out) == "" {
		log.Printf("triage: summary generation failed, using template: %v", err)
		return fmt.Sprintf("Assessment complete. Possible conditions: %s. Please consult a doctor if symptoms worsen.", diagnoses)
	}
	return strings.TrimSpace(out)
}

// clarify rephrases the pending question. If the model fails the question is
// simply re-asked.
func (e *Engine) clarify(ctx context.Context, question string) string {
	prompt := fmt.Sprintf(`A caller did not understand this triage question: %q
Rephrase it in simpler words, one short sentence, still a question.`, question)
	out, err := e.llm.Complete(ctx, prompt)
	if err != nil || strings.TrimSpace(out) == "" {
		log.Printf("triage: clarification failed, re-asking: %v", err)
		return question
	}
	return strings.TrimSpace(out)
}

type intentVerdict struct {
	Intent string `json:"intent"`
}

// classifyIntent decides how the caller's message relates to the pending
// question. Unparseable output falls back to keyword matching and finally to
// ANSWER.
func (e *Engine) classifyIntent(ctx context.Context, userText, pendingQuestion string) string {
	if strings.TrimSpace(userText) == "" {
		return intentAnswer
	}
	prompt := fmt.Sprintf(`The agent asked a caller: %q
The caller replied: %q

Classify the reply as one of:
ANSWER (it answers the question), RESTART (they want to start over),
CLARIFY (they did not understand the question), IRRELEVANT (off topic).

Respond with JSON only: {"intent": "ANSWER"}`, pendingQuestion, userText)

	out, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		log.Printf("triage: intent classification failed, assuming answer: %v", err)
		return intentAnswer
	}
	if raw, ok := llm.ExtractJSONObject(out); ok {
		var v intentVerdict
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			switch strings.ToUpper(strings.TrimSpace(v.Intent)) {
			case intentAnswer, intentRestart, intentClarify, intentIrrelevant:
				return strings.ToUpper(strings.TrimSpace(v.Intent))
			}
		}
	}
	upper := strings.ToUpper(out)
	switch {
	case strings.Contains(upper, intentRestart):
		return intentRestart
	case strings.Contains(upper, intentClarify):
		return intentClarify
	default:
		return intentAnswer
	}
}

func (e *Engine) completeInto(ctx context.Context, prompt string, dst any) error {
	out, err := e.llm.CompleteJSON(ctx, prompt)
	if err != nil {
		return err
	}
	raw, ok := llm.ExtractJSONObject(out)
	if !ok {
		return fmt.Errorf("no JSON object in model output")
	}
	return json.Unmarshal([]byte(raw), dst)
}

func formatHistory(msgs []Message) string {
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	var b strings.Builder
	for _, m := range msgs {
		role := "Caller"
		if m.Role == RoleAgent {
			role = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}

func formatDocs(docs []string) string {
	if len(docs) == 0 {
		return "(none)"
	}
	return formatList(docs)
}

func formatList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}

func lastHumanMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleHuman {
			return msgs[i].Content
		}
	}
	return ""
}

func lastAgentMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAgent {
			return msgs[i].Content
		}
	}
	return ""
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
