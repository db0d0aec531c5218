package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type llmStep struct {
	out string
	err error
}

// scriptedLLM replays queued responses in call order, one queue per method,
// and records the prompts it was given.
type scriptedLLM struct {
	t           *testing.T
	jsonSteps   []llmStep
	textSteps   []llmStep
	jsonPrompts []string
	textPrompts []string
}

func (f *scriptedLLM) CompleteJSON(_ context.Context, prompt string) (string, error) {
	if len(f.jsonSteps) == 0 {
		f.t.Fatalf("unexpected CompleteJSON call")
	}
	f.jsonPrompts = append(f.jsonPrompts, prompt)
	step := f.jsonSteps[0]
	f.jsonSteps = f.jsonSteps[1:]
	return step.out, step.err
}

func (f *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	if len(f.textSteps) == 0 {
		f.t.Fatalf("unexpected Complete call")
	}
	f.textPrompts = append(f.textPrompts, prompt)
	step := f.textSteps[0]
	f.textSteps = f.textSteps[1:]
	return step.out, step.err
}

type fakeRetriever struct {
	docs []string
	err  error
}

func (f *fakeRetriever) Query(_ context.Context, _ string, _ int) ([]string, error) {
	return f.docs, f.err
}

const (
	scanRoutine      = `{"is_emergency": false}`
	scanEmergency    = `{"is_emergency": true}`
	intentAnswerJSON = `{"intent": "ANSWER"}`
)

func TestInvoke_EmergencyShortCircuits(t *testing.T) {
	model := &scriptedLLM{t: t, jsonSteps: []llmStep{{out: scanEmergency}}}
	e := NewEngine(model, &fakeRetriever{})

	res, err := e.Invoke(context.Background(), "s1", "crushing chest pain and my arm is numb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionEmergency {
		t.Fatalf("decision = %s, want EMERGENCY", res.Decision)
	}
	if res.Response != "" {
		t.Fatalf("emergency turn should carry no triage reply, got %q", res.Response)
	}
}

func TestInvoke_FirstTurnAsksFirstQuestion(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{out: `{"differential_diagnosis": ["tension headache", "migraine"],
			        "new_questions": ["Do you have any neck stiffness?", "Is light bothering your eyes?"]}`},
		},
		textSteps: []llmStep{{out: intentAnswerJSON}},
	}
	e := NewEngine(model, &fakeRetriever{docs: []string{"headache protocol"}})

	res, err := e.Invoke(context.Background(), "s1", "I have a bad headache")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("decision = %s, want PENDING", res.Decision)
	}
	if res.Response != "Do you have any neck stiffness?" {
		t.Fatalf("response = %q, want first checklist question", res.Response)
	}
	if res.AssessmentComplete {
		t.Fatalf("assessment should not be complete after one question")
	}

	st := e.StateFor("s1")
	if len(st.InvestigatedSymptoms) != 1 || st.InvestigatedSymptoms[0] != "Do you have any neck stiffness?" {
		t.Fatalf("asked question should be recorded as investigated: %v", st.InvestigatedSymptoms)
	}
	if len(st.SafetyChecklist) != 2 || st.SafetyChecklist[0] != "Do you have any neck stiffness?" {
		t.Fatalf("checklist head should remain until answered: %v", st.SafetyChecklist)
	}
}

func TestInvoke_FollowUpStopAskingYieldsSummary(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{out: `{"differential_diagnosis": ["migraine"],
			        "new_questions": ["Is light bothering your eyes?"]}`},
			{out: scanRoutine},
			{out: `{"differential_diagnosis": ["migraine"], "new_questions_to_add": [], "stop_asking": true}`},
		},
		textSteps: []llmStep{
			{out: intentAnswerJSON},
			{out: "It sounds like a migraine. Rest in a dark room and see your doctor if it persists."},
		},
	}
	e := NewEngine(model, &fakeRetriever{})

	if _, err := e.Invoke(context.Background(), "s1", "I have a bad headache"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := e.Invoke(context.Background(), "s1", "yes, the light hurts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionComplete || !res.AssessmentComplete {
		t.Fatalf("expected completed assessment, got decision=%s complete=%v", res.Decision, res.AssessmentComplete)
	}
	if !strings.Contains(res.Response, "migraine") {
		t.Fatalf("summary should reach the caller, got %q", res.Response)
	}
}

func TestInvoke_InvestigatedCapForcesComplete(t *testing.T) {
	model := &scriptedLLM{
		t:         t,
		jsonSteps: []llmStep{{out: scanRoutine}},
		textSteps: []llmStep{{err: errors.New("model down")}},
	}
	e := NewEngine(model, &fakeRetriever{})

	st := e.StateFor("s1")
	st.DifferentialDiagnosis = []string{"bronchitis"}
	st.SafetyChecklist = []string{"Any wheezing?"}
	st.InvestigatedSymptoms = []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"}

	res, err := e.Invoke(context.Background(), "s1", "still coughing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionComplete || !res.AssessmentComplete {
		t.Fatalf("cap should force completion, got decision=%s complete=%v", res.Decision, res.AssessmentComplete)
	}
	if len(st.SafetyChecklist) != 0 {
		t.Fatalf("cap should clear the checklist: %v", st.SafetyChecklist)
	}
	if !strings.Contains(res.Response, "bronchitis") {
		t.Fatalf("fallback summary should name the diagnoses, got %q", res.Response)
	}
}

func TestInvoke_RestartClearsState(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{out: `{"differential_diagnosis": [], "new_questions_to_add": ["Where exactly is the pain?"], "stop_asking": false}`},
		},
		textSteps: []llmStep{{out: `{"intent": "RESTART"}`}},
	}
	e := NewEngine(model, &fakeRetriever{})

	st := e.StateFor("s1")
	st.DifferentialDiagnosis = []string{"appendicitis"}
	st.SafetyChecklist = []string{"Is the pain on your right side?", "Any nausea?"}
	st.InvestigatedSymptoms = []string{"Is the pain on your right side?"}
	st.Messages = []Message{
		{Role: RoleHuman, Content: "my stomach hurts"},
		{Role: RoleAgent, Content: "Is the pain on your right side?"},
	}

	res, err := e.Invoke(context.Background(), "s1", "wait, I want to start over")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("restart should return to PENDING, got %s", res.Decision)
	}
	if len(st.SafetyChecklist) != 0 || len(st.InvestigatedSymptoms) != 0 || len(st.DifferentialDiagnosis) != 0 {
		t.Fatalf("restart should clear interview state: %v %v %v",
			st.SafetyChecklist, st.InvestigatedSymptoms, st.DifferentialDiagnosis)
	}
	if !strings.Contains(res.Response, "start over") {
		t.Fatalf("unexpected restart reply %q", res.Response)
	}
}

func TestInvoke_RetrievalFailureTolerated(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{out: `{"differential_diagnosis": ["flu"], "new_questions": ["Do you have a fever?"]}`},
		},
		textSteps: []llmStep{{out: intentAnswerJSON}},
	}
	e := NewEngine(model, &fakeRetriever{err: errors.New("chroma unreachable")})

	res, err := e.Invoke(context.Background(), "s1", "I feel achy all over")
	if err != nil {
		t.Fatalf("retrieval failure must not fail the turn: %v", err)
	}
	if res.Response != "Do you have a fever?" {
		t.Fatalf("response = %q", res.Response)
	}
}

func TestInvoke_InitialDiagnosisFailureReprompts(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{err: errors.New("model down")},
		},
	}
	e := NewEngine(model, &fakeRetriever{})

	res, err := e.Invoke(context.Background(), "s1", "I have a headache")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response == "" || res.AssessmentComplete {
		t.Fatalf("expected a re-prompt without completing, got %+v", res)
	}
	st := e.StateFor("s1")
	if len(st.SafetyChecklist) != 0 || len(st.InvestigatedSymptoms) != 0 {
		t.Fatalf("failed initial diagnosis must not mutate interview state")
	}
}

func TestInvoke_FollowUpPrunesDuplicateAdditions(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{out: `{"differential_diagnosis": [],
			        "new_questions_to_add": ["Any stiffness in your neck?", "Are you short of breath?"],
			        "stop_asking": false}`},
		},
		textSteps: []llmStep{{out: intentAnswerJSON}},
	}
	e := NewEngine(model, &fakeRetriever{})

	st := e.StateFor("s1")
	st.SafetyChecklist = []string{"Do you have any neck stiffness?", "Is light bothering your eyes?"}
	st.InvestigatedSymptoms = []string{"Do you have any neck stiffness?"}

	if _, err := e.Invoke(context.Background(), "s1", "no stiffness"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, q := range st.SafetyChecklist {
		if IsDuplicate(q, "Do you have any neck stiffness?") {
			t.Fatalf("duplicate of an investigated question survived pruning: %v", st.SafetyChecklist)
		}
	}
	if !contains(st.SafetyChecklist, "Are you short of breath?") {
		t.Fatalf("novel question should be queued: %v", st.SafetyChecklist)
	}
}

func TestInvoke_ClarifyRestatesQuestionJustAsked(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{out: `{"differential_diagnosis": [], "new_questions_to_add": [], "stop_asking": false}`},
		},
		textSteps: []llmStep{
			{out: `{"intent": "CLARIFY"}`},
			{out: "In simpler words, does your chest hurt when you breathe in?"},
		},
	}
	e := NewEngine(model, &fakeRetriever{})

	st := e.StateFor("s1")
	st.SafetyChecklist = []string{"Is the pain pleuritic?", "Have you fainted recently?"}
	st.InvestigatedSymptoms = []string{"Is the pain pleuritic?"}
	st.Messages = []Message{
		{Role: RoleHuman, Content: "my chest hurts"},
		{Role: RoleAgent, Content: "Is the pain pleuritic?"},
	}

	res, err := e.Invoke(context.Background(), "s1", "what do you mean?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response != "In simpler words, does your chest hurt when you breathe in?" {
		t.Fatalf("response = %q", res.Response)
	}

	clarifyPrompt := model.textPrompts[len(model.textPrompts)-1]
	if !strings.Contains(clarifyPrompt, "Is the pain pleuritic?") {
		t.Fatalf("clarification must target the question the caller heard, prompt: %q", clarifyPrompt)
	}
	if strings.Contains(clarifyPrompt, "Have you fainted recently?") {
		t.Fatalf("clarification must not leak the upcoming question, prompt: %q", clarifyPrompt)
	}
}

func TestInvoke_IrrelevantRedirects(t *testing.T) {
	model := &scriptedLLM{
		t: t,
		jsonSteps: []llmStep{
			{out: scanRoutine},
			{out: `{"differential_diagnosis": [], "new_questions_to_add": [], "stop_asking": false}`},
		},
		textSteps: []llmStep{{out: `{"intent": "IRRELEVANT"}`}},
	}
	e := NewEngine(model, &fakeRetriever{})

	st := e.StateFor("s1")
	st.SafetyChecklist = []string{"Do you have a fever?", "Any chills?"}

	res, err := e.Invoke(context.Background(), "s1", "what's the weather like")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Response, "Any chills?") {
		t.Fatalf("redirect should repeat the pending question, got %q", res.Response)
	}
	if contains(st.InvestigatedSymptoms, "Any chills?") {
		t.Fatalf("redirect must not mark the question investigated")
	}
}

func TestClassifyIntent_KeywordFallback(t *testing.T) {
	model := &scriptedLLM{t: t, textSteps: []llmStep{
		{out: "the caller clearly wants to RESTART the interview"},
		{out: "they need you to CLARIFY"},
		{out: "no json here"},
	}}
	e := NewEngine(model, &fakeRetriever{})
	ctx := context.Background()

	if got := e.classifyIntent(ctx, "x", "q"); got != intentRestart {
		t.Fatalf("got %s, want RESTART", got)
	}
	if got := e.classifyIntent(ctx, "x", "q"); got != intentClarify {
		t.Fatalf("got %s, want CLARIFY", got)
	}
	if got := e.classifyIntent(ctx, "x", "q"); got != intentAnswer {
		t.Fatalf("got %s, want ANSWER", got)
	}
}
