package triage

import (
	"reflect"
	"testing"
)

func TestIsDuplicate_Rephrasing(t *testing.T) {
	if !IsDuplicate("Do you have any neck stiffness?", "Any stiffness in your neck?") {
		t.Fatalf("expected rephrased questions to be duplicates")
	}
}

func TestIsDuplicate_DistinctQuestions(t *testing.T) {
	if IsDuplicate("Do you have a fever?", "Any chest pain?") {
		t.Fatalf("expected unrelated questions not to be duplicates")
	}
}

func TestIsDuplicate_IgnoresCaseAndPunctuation(t *testing.T) {
	if !IsDuplicate("DO YOU HAVE A FEVER?!", "do you have a fever") {
		t.Fatalf("expected case and punctuation variants to be duplicates")
	}
}

func TestPruneDuplicates_DropsForbidden(t *testing.T) {
	got := PruneDuplicates(
		[]string{"Do you have a fever?", "Any neck stiffness?", "Any cough?"},
		[]string{"Do you have a fever?", "Any cough?"},
	)
	want := []string{"Any neck stiffness?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPruneDuplicates_DropsShortCandidates(t *testing.T) {
	got := PruneDuplicates([]string{"Yes?", "Does the pain spread to your arm?"}, nil)
	want := []string{"Does the pain spread to your arm?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPruneDuplicates_KeepsFirstOfInternalDuplicates(t *testing.T) {
	got := PruneDuplicates([]string{
		"Do you have any neck stiffness?",
		"Any stiffness in your neck?",
		"Are you short of breath?",
	}, nil)
	want := []string{"Do you have any neck stiffness?", "Are you short of breath?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPruneDuplicates_PreservesOrder(t *testing.T) {
	in := []string{"Are you short of breath?", "Is the pain sharp or dull?", "When did it start?"}
	got := PruneDuplicates(in, nil)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %v, want %v", got, in)
	}
}

func TestNormalizeQuestion_SortsWords(t *testing.T) {
	a := normalizeQuestion("Any stiffness in your neck?")
	b := normalizeQuestion("neck your in stiffness any")
	if a != b {
		t.Fatalf("normalization should be word-order independent: %q vs %q", a, b)
	}
}
