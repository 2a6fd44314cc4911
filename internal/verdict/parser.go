package verdict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// Answer is a validated final answer from the model
type Answer struct {
	Verdict     model.Verdict
	Explanation string
	Context     string
	References  []model.Reference
}

// aliases maps verdict spellings models commonly use onto the canonical set
var aliases = map[string]model.Verdict{
	"PARTIALLY_TRUE": model.VerdictMixed,
	"HALF_TRUE":      model.VerdictMixed,
}

// Parse extracts and validates the first JSON object in raw.
// Code fences and surrounding prose are tolerated; unknown fields are ignored.
func Parse(raw string) (*Answer, error) {
	fields, err := firstObject(raw)
	if err != nil {
		return nil, err
	}

	verdict, err := parseVerdict(fields)
	if err != nil {
		return nil, err
	}
	explanation, err := requiredString(fields, "explanation")
	if err != nil {
		return nil, err
	}
	context, err := requiredString(fields, "context")
	if err != nil {
		return nil, err
	}
	refs, err := parseReferences(fields)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Verdict:     verdict,
		Explanation: explanation,
		Context:     context,
		References:  refs,
	}, nil
}

// firstObject finds the first '{' that starts a complete JSON object
func firstObject(raw string) (map[string]json.RawMessage, error) {
	data := []byte(raw)
	for offset := 0; offset < len(data); {
		i := bytes.IndexByte(data[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i

		var fields map[string]json.RawMessage
		dec := json.NewDecoder(bytes.NewReader(data[start:]))
		if err := dec.Decode(&fields); err == nil {
			return fields, nil
		}
		offset = start + 1
	}
	return nil, mismatch("", "no JSON object found")
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(bytes.TrimSpace(v)) == "null"
}

func parseVerdict(fields map[string]json.RawMessage) (model.Verdict, error) {
	raw, ok := fields["verdict"]
	if !ok || isNull(raw) {
		return "", missing("verdict")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", mismatch("verdict", "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return "", missing("verdict")
	}

	normalized := strings.ToUpper(strings.Join(strings.Fields(s), "_"))
	normalized = strings.ReplaceAll(normalized, "-", "_")

	v := model.Verdict(normalized)
	if alias, ok := aliases[normalized]; ok {
		v = alias
	}
	if !v.Valid() {
		return "", &ParseError{Kind: KindUnknownVerdict, Field: "verdict", Detail: fmt.Sprintf("%q is not one of %v", s, model.Verdicts)}
	}
	return v, nil
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", missing(name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", mismatch(name, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", missing(name)
	}
	return s, nil
}

func parseReferences(fields map[string]json.RawMessage) ([]model.Reference, error) {
	raw, ok := fields["references"]
	if !ok || isNull(raw) {
		return nil, missing("references")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, mismatch("references", "must be an array")
	}

	refs := make([]model.Reference, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("references[%d]", i)

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			return nil, mismatch(field, "must be an object with title and url")
		}

		link, err := firstString(obj, field, "url", "link")
		if err != nil {
			return nil, err
		}
		if link == "" {
			return nil, mismatch(field+".url", "required")
		}
		parsed, perr := url.Parse(link)
		if perr != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, mismatch(field+".url", "%q is not an http(s) URL", link)
		}

		title, err := firstString(obj, field, "title", "source", "name")
		if err != nil {
			return nil, err
		}
		ref := model.Reference{Title: title, URL: link}
		if ref.Title == "" {
			ref.Title = ref.Host()
		}
		refs = append(refs, ref)
	}

	return refs, nil
}

// firstString returns the first non-empty string among keys
func firstString(obj map[string]json.RawMessage, field string, keys ...string) (string, error) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", mismatch(field+"."+key, "must be a string")
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
	return "", nil
}

// RequireTraced rejects the answer if any reference URL is not among seen,
// a set of canonical URLs returned by searches during the same check
func RequireTraced(a *Answer, seen map[string]struct{}) error {
	for i, ref := range a.References {
		if _, ok := seen[model.CanonicalURL(ref.URL)]; !ok {
			return &ParseError{
				Kind:   KindUntracedReference,
				Field:  fmt.Sprintf("references[%d].url", i),
				Detail: fmt.Sprintf("%s was not returned by any search; cite only search results", ref.URL),
			}
		}
	}
	return nil
}
