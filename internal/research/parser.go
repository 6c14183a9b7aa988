package research

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	// ParseFailureNotice replaces the executive summary when the model output
	// could not be decoded.
	ParseFailureNotice = "Research completed but response parsing failed. Raw response available."

	// ParseErrorFinding names the synthetic finding that carries the decode error.
	ParseErrorFinding = "Parse Error"

	researchFailedPrefix = "Research failed: "
)

// Result is the normalized output of one research call.
type Result struct {
	ExecutiveSummary string       `json:"executive_summary"`
	KeyFindings      []Finding    `json:"key_findings"`
	Bibliography     Bibliography `json:"bibliography"`
}

// Degraded reports whether r came from a parse or upstream failure.
func (r Result) Degraded() bool {
	if strings.HasPrefix(r.ExecutiveSummary, researchFailedPrefix) && len(r.KeyFindings) == 0 {
		return true
	}
	return r.ExecutiveSummary == ParseFailureNotice &&
		len(r.KeyFindings) == 1 && r.KeyFindings[0].Name == ParseErrorFinding
}

// ParseResponse decodes raw model text into a Result. It never fails: text
// that is not JSON, or is JSON but not an object, yields the degraded parse
// result. Within a valid object each field is read leniently so one badly
// typed value costs only that value.
func ParseResponse(raw string) Result {
	text := stripCodeFence(raw)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &top); err != nil {
		return parseFailure(err)
	}

	summary, _ := scalarString(top["executive_summary"])

	findings := []Finding{}
	for _, item := range rawArray(top["key_findings"]) {
		if f, ok := decodeFinding(item); ok {
			findings = append(findings, f)
		}
	}

	bib := EmptyBibliography()
	if fields := rawObject(top["bibliography"]); fields != nil {
		bib.AIGenerated = stringList(fields["ai_generated"])
		bib.External = stringList(fields["external"])
	}

	return Result{
		ExecutiveSummary: summary,
		KeyFindings:      findings,
		Bibliography:     bib,
	}
}

// decodeFinding reads one key_findings element. Non-objects are dropped.
func decodeFinding(raw json.RawMessage) (Finding, bool) {
	fields := rawObject(raw)
	if fields == nil {
		return Finding{}, false
	}

	name, _ := scalarString(fields["name"])
	description, _ := scalarString(fields["description"])
	confidence, _ := scalarString(fields["confidence"])

	indices := []int{}
	for _, item := range rawArray(fields["source_indices"]) {
		if i, ok := sourceIndex(item); ok {
			indices = append(indices, i)
		}
	}

	return Finding{
		Name:          name,
		Description:   description,
		SourceIndices: indices,
		Confidence:    normalizeConfidence(Confidence(confidence)),
	}, true
}

// sourceIndex accepts integral numbers, including 3.0 and numeric strings.
func sourceIndex(raw json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || n == "" {
		return 0, false
	}
	if i, err := n.Int64(); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// scalarString reads a JSON string, number or boolean as text.
func scalarString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, string(raw) != "null"
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

func stringList(raw json.RawMessage) []string {
	out := []string{}
	for _, item := range rawArray(raw) {
		if s, ok := scalarString(item); ok {
			out = append(out, s)
		}
	}
	return out
}

func rawArray(raw json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	return items
}

func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return nil
	}
	return fields
}

// FailureResult is the report body used when the generative call itself failed.
func FailureResult(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		ExecutiveSummary: researchFailedPrefix + msg,
		KeyFindings:      []Finding{},
		Bibliography:     EmptyBibliography(),
	}
}

func parseFailure(err error) Result {
	return Result{
		ExecutiveSummary: ParseFailureNotice,
		KeyFindings: []Finding{{
			Name:          ParseErrorFinding,
			Description:   err.Error(),
			SourceIndices: []int{},
			Confidence:    ConfidenceLow,
		}},
		Bibliography: EmptyBibliography(),
	}
}

// stripCodeFence removes at most one leading "```json" or "```" marker and at
// most one trailing "```". Nested or unbalanced fences are left alone.
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
