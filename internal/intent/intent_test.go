package intent

import (
	"reflect"
	"testing"
)

func TestClassify_DebuggingQuery(t *testing.T) {
	got := Classify("My contract deployment is failing with gas estimation error")
	if got.Type != Debugging {
		t.Fatalf("expected debugging, got %s", got.Type)
	}
	if got.Confidence <= 0.5 {
		t.Fatalf("expected confidence > 0.5, got %v", got.Confidence)
	}
	if !reflect.DeepEqual(got.Domains, []string{"blockchain", "devops"}) {
		t.Fatalf("unexpected domains: %v", got.Domains)
	}
	if got.Complexity != Medium {
		t.Fatalf("expected length-based medium complexity, got %s", got.Complexity)
	}
	want := []string{"contract", "deployment", "failing", "gas", "estimation", "error"}
	if !reflect.DeepEqual(got.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", got.Keywords, want)
	}
}

func TestClassify_Intents(t *testing.T) {
	tests := []struct {
		query      string
		want       Type
		confidence float64
	}{
		{"What is a smart contract?", Explanation, 0.7},
		{"hello", Explanation, 0.3},
		{"fix the docs", Documentation, 1.0/3 + 0.1},
		{"Create a new contract from a template", Generation, 1.0},
		{"refactor this", Coding, 1.0/3 + 0.1},
		{"finish it", Completion, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Classify(tt.query)
			if got.Type != tt.want {
				t.Fatalf("Classify(%q).Type = %s, want %s", tt.query, got.Type, tt.want)
			}
			if diff := got.Confidence - tt.confidence; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("Classify(%q).Confidence = %v, want %v", tt.query, got.Confidence, tt.confidence)
			}
		})
	}
}

func TestClassify_Complexity(t *testing.T) {
	tests := []struct {
		query string
		want  Complexity
	}{
		{"quick typo in the readme please", Low},
		{"add a withdraw function", Medium},
		{"redesign the whole architecture of the protocol", High},
		{"why", Low},
		{"tell me everything you know about the way the staking rewards are distributed across epochs and validators", High},
	}
	for _, tt := range tests {
		if got := Classify(tt.query).Complexity; got != tt.want {
			t.Fatalf("complexity(%q) = %s, want %s", tt.query, got, tt.want)
		}
	}
}

func TestClassify_KeywordsDropStopWords(t *testing.T) {
	got := Classify("How do I write a function?")
	if !reflect.DeepEqual(got.Keywords, []string{"write", "function"}) {
		t.Fatalf("unexpected keywords: %v", got.Keywords)
	}
	if len(got.Domains) != 0 {
		t.Fatalf("expected no domains, got %v", got.Domains)
	}
}

func TestClassify_PhraseKeywords(t *testing.T) {
	got := Classify("audit the smart contract for reentrancy")
	found := false
	for _, k := range got.Keywords {
		if k == "smart contract" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected domain phrase in keywords, got %v", got.Keywords)
	}
	if !reflect.DeepEqual(got.Domains, []string{"blockchain", "security"}) {
		t.Fatalf("unexpected domains: %v", got.Domains)
	}
}

func TestClassify_KeepsOriginalQuery(t *testing.T) {
	query := "  Why does my Token CONTRACT revert?  "
	got := Classify(query)
	if got.Query != query {
		t.Fatalf("Query = %q, want %q", got.Query, query)
	}
	if got.Type != Debugging {
		t.Fatalf("expected debugging, got %s", got.Type)
	}
}
