package verdict

import (
	"errors"
	"testing"

	"github.com/ppiankov/veracity/internal/model"
)

const validAnswer = `{
  "verdict": "TRUE",
  "explanation": "Paris has been the capital of France since 987 [1].",
  "context": "The seat of government has been in Paris for most of French history.",
  "references": [{"title": "Paris - Wikipedia", "url": "https://en.wikipedia.org/wiki/Paris"}]
}`

func TestParse_Valid(t *testing.T) {
	a, err := Parse(validAnswer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Verdict != model.VerdictTrue {
		t.Errorf("expected TRUE, got %s", a.Verdict)
	}
	if len(a.References) != 1 || a.References[0].Title != "Paris - Wikipedia" {
		t.Errorf("unexpected references: %+v", a.References)
	}
}

func TestParse_Tolerance(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want model.Verdict
	}{
		{"code fence", "```json\n" + validAnswer + "\n```", model.VerdictTrue},
		{"surrounding prose", "Here is my analysis:\n" + validAnswer + "\nHope this helps.", model.VerdictTrue},
		{"brace in prose first", "I will answer {briefly}: " + validAnswer, model.VerdictTrue},
		{"lower case spaced", `{"verdict":"mostly true","explanation":"e","context":"c","references":[]}`, model.VerdictMostlyTrue},
		{"hyphenated", `{"verdict":"Mostly-False","explanation":"e","context":"c","references":[]}`, model.VerdictMostlyFalse},
		{"partially true alias", `{"verdict":"PARTIALLY_TRUE","explanation":"e","context":"c","references":[]}`, model.VerdictMixed},
		{"half true alias", `{"verdict":"half true","explanation":"e","context":"c","references":[]}`, model.VerdictMixed},
		{"extra fields", `{"verdict":"FALSE","explanation":"e","context":"c","references":[],"confidence":0.9,"search_time":1.2}`, model.VerdictFalse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Verdict != tt.want {
				t.Errorf("expected %s, got %s", tt.want, a.Verdict)
			}
		})
	}
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		kind  Kind
		field string
	}{
		{"no json", "The claim is true.", KindSchemaMismatch, ""},
		{"truncated json", `{"verdict": "TRUE", "explanation": "`, KindSchemaMismatch, ""},
		{"missing verdict", `{"explanation":"e","context":"c","references":[]}`, KindMissingField, "verdict"},
		{"null verdict", `{"verdict":null,"explanation":"e","context":"c","references":[]}`, KindMissingField, "verdict"},
		{"numeric verdict", `{"verdict":1,"explanation":"e","context":"c","references":[]}`, KindSchemaMismatch, "verdict"},
		{"unknown verdict", `{"verdict":"SORT OF TRUE","explanation":"e","context":"c","references":[]}`, KindUnknownVerdict, "verdict"},
		{"unverifiable", `{"verdict":"UNVERIFIABLE","explanation":"e","context":"c","references":[]}`, KindUnknownVerdict, "verdict"},
		{"missing explanation", `{"verdict":"TRUE","context":"c","references":[]}`, KindMissingField, "explanation"},
		{"blank explanation", `{"verdict":"TRUE","explanation":"  ","context":"c","references":[]}`, KindMissingField, "explanation"},
		{"missing context", `{"verdict":"TRUE","explanation":"e","references":[]}`, KindMissingField, "context"},
		{"null context", `{"verdict":"TRUE","explanation":"e","context":null,"references":[]}`, KindMissingField, "context"},
		{"context wrong type", `{"verdict":"TRUE","explanation":"e","context":["c"],"references":[]}`, KindSchemaMismatch, "context"},
		{"missing references", `{"verdict":"TRUE","explanation":"e","context":"c"}`, KindMissingField, "references"},
		{"null references", `{"verdict":"TRUE","explanation":"e","context":"c","references":null}`, KindMissingField, "references"},
		{"references string", `{"verdict":"TRUE","explanation":"e","context":"c","references":"https://a.example"}`, KindSchemaMismatch, "references"},
		{"reference not object", `{"verdict":"TRUE","explanation":"e","context":"c","references":["https://a.example"]}`, KindSchemaMismatch, "references[0]"},
		{"reference without url", `{"verdict":"TRUE","explanation":"e","context":"c","references":[{"title":"t"}]}`, KindSchemaMismatch, "references[0].url"},
		{"reference bad scheme", `{"verdict":"TRUE","explanation":"e","context":"c","references":[{"title":"t","url":"ftp://a.example/x"}]}`, KindSchemaMismatch, "references[0].url"},
		{"reference relative", `{"verdict":"TRUE","explanation":"e","context":"c","references":[{"title":"t","url":"/wiki/Paris"}]}`, KindSchemaMismatch, "references[0].url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if perr.Kind != tt.kind || perr.Field != tt.field {
				t.Errorf("expected %s/%q, got %s/%q (%v)", tt.kind, tt.field, perr.Kind, perr.Field, perr)
			}
		})
	}
}

func TestParse_ReferenceAliases(t *testing.T) {
	raw := `{"verdict":"MIXED","explanation":"e","context":"c","references":[
		{"source":"Britannica","link":"https://www.britannica.com/place/Paris"},
		{"name":"Gov","url":"https://www.gouv.fr/"},
		{"url":"https://en.wikipedia.org/wiki/Paris"}
	]}`

	a, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.Reference{
		{Title: "Britannica", URL: "https://www.britannica.com/place/Paris"},
		{Title: "Gov", URL: "https://www.gouv.fr/"},
		{Title: "en.wikipedia.org", URL: "https://en.wikipedia.org/wiki/Paris"},
	}
	if len(a.References) != len(want) {
		t.Fatalf("expected %d references, got %d", len(want), len(a.References))
	}
	for i := range want {
		if a.References[i] != want[i] {
			t.Errorf("reference %d: expected %+v, got %+v", i, want[i], a.References[i])
		}
	}
}

func TestParseError_Is(t *testing.T) {
	_, err := Parse(`{"verdict":"TRUE","context":"c","references":[]}`)
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
	if errors.Is(err, ErrSchemaMismatch) {
		t.Error("missing field should not match schema mismatch")
	}
}

func TestRequireTraced(t *testing.T) {
	a, err := Parse(validAnswer)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]struct{}{model.CanonicalURL("https://EN.wikipedia.org/wiki/Paris/"): {}}
	if err := RequireTraced(a, seen); err != nil {
		t.Errorf("expected traced reference to pass: %v", err)
	}

	err = RequireTraced(a, map[string]struct{}{})
	if !errors.Is(err, ErrUntracedReference) {
		t.Errorf("expected ErrUntracedReference, got %v", err)
	}

	empty := &Answer{Verdict: model.VerdictMixed}
	if err := RequireTraced(empty, nil); err != nil {
		t.Errorf("no references should always pass: %v", err)
	}
}
