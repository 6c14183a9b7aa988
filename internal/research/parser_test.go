package research

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `{
  "executive_summary": "The 1968 expedition was funded by the Royal Society [1] and a private donor [2].",
  "key_findings": [
    {"name": "Royal Society grant", "description": "Covered ship charter", "source_indices": [1], "confidence": "high"},
    {"name": "Anonymous donor", "description": "Paid for equipment", "source_indices": [2], "confidence": "medium"},
    {"name": "Crew wages", "description": "Unclear who paid", "source_indices": [], "confidence": "low"}
  ],
  "bibliography": {
    "ai_generated": ["Royal Society annual report 1968", "Donor correspondence"],
    "external": ["https://example.org/archive/1968"]
  }
}`

func TestParseResponsePassThrough(t *testing.T) {
	res := ParseResponse(wellFormed)

	var want struct {
		ExecutiveSummary string       `json:"executive_summary"`
		KeyFindings      []Finding    `json:"key_findings"`
		Bibliography     Bibliography `json:"bibliography"`
	}
	require.NoError(t, json.Unmarshal([]byte(wellFormed), &want))

	assert.Equal(t, want.ExecutiveSummary, res.ExecutiveSummary)
	assert.Equal(t, want.KeyFindings, res.KeyFindings)
	assert.Equal(t, want.Bibliography, res.Bibliography)
	assert.False(t, res.Degraded())
}

func TestParseResponseDefaults(t *testing.T) {
	res := ParseResponse(`{}`)
	assert.Equal(t, "", res.ExecutiveSummary)
	assert.NotNil(t, res.KeyFindings)
	assert.Empty(t, res.KeyFindings)
	assert.Equal(t, EmptyBibliography(), res.Bibliography)

	res = ParseResponse(`{"bibliography": {"external": ["x"]}}`)
	assert.Equal(t, []string{}, res.Bibliography.AIGenerated)
	assert.Equal(t, []string{"x"}, res.Bibliography.External)
}

func TestParseResponseIgnoresUnknownFields(t *testing.T) {
	res := ParseResponse(`{"executive_summary": "x", "mood": "cheerful", "key_findings": [{"name": "a", "extra": 1}]}`)
	assert.Equal(t, "x", res.ExecutiveSummary)
	require.Len(t, res.KeyFindings, 1)
	assert.Equal(t, "a", res.KeyFindings[0].Name)
	assert.Equal(t, []int{}, res.KeyFindings[0].SourceIndices)
	assert.Equal(t, ConfidenceLow, res.KeyFindings[0].Confidence)
}

func TestParseResponseNormalizesConfidence(t *testing.T) {
	res := ParseResponse(`{"key_findings": [
		{"name": "a", "confidence": " HIGH "},
		{"name": "b", "confidence": "certain"},
		{"name": "c"}
	]}`)
	require.Len(t, res.KeyFindings, 3)
	assert.Equal(t, ConfidenceHigh, res.KeyFindings[0].Confidence)
	assert.Equal(t, ConfidenceLow, res.KeyFindings[1].Confidence)
	assert.Equal(t, ConfidenceLow, res.KeyFindings[2].Confidence)
}

func TestParseResponseFenceStripping(t *testing.T) {
	bare := ParseResponse(wellFormed)

	for name, wrapped := range map[string]string{
		"json fence":     "```json\n" + wellFormed + "\n```",
		"plain fence":    "```\n" + wellFormed + "\n```",
		"leading only":   "```json" + wellFormed,
		"trailing only":  wellFormed + "```",
		"surrounding ws": "  \n```json\n" + wellFormed + "\n```\n\t",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, bare, ParseResponse(wrapped))
		})
	}
}

func TestParseResponseScenarioFencedSummaryOnly(t *testing.T) {
	res := ParseResponse("```json\n{\"executive_summary\":\"x\"}\n```")
	assert.Equal(t, "x", res.ExecutiveSummary)
	assert.Equal(t, []Finding{}, res.KeyFindings)
	assert.Equal(t, Bibliography{AIGenerated: []string{}, External: []string{}}, res.Bibliography)
}

func TestParseResponseScenarioNotJSON(t *testing.T) {
	res := ParseResponse("not json at all")

	assert.Equal(t, ParseFailureNotice, res.ExecutiveSummary)
	require.Len(t, res.KeyFindings, 1)
	f := res.KeyFindings[0]
	assert.Equal(t, ParseErrorFinding, f.Name)
	assert.NotEmpty(t, f.Description)
	assert.Equal(t, ConfidenceLow, f.Confidence)
	assert.Equal(t, []int{}, f.SourceIndices)
	assert.Equal(t, EmptyBibliography(), res.Bibliography)
	assert.True(t, res.Degraded())
}

func TestParseResponseNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"```",
		"``````",
		"```json```",
		"{",
		"[]",
		"null",
		`"just a string"`,
		`{"key_findings": "not a list"}`,
		`{"key_findings": [{"source_indices": ["one"]}]}`,
		`{"bibliography": []}`,
		"```json\n```json\n{}\n```\n```",
		"\x00\xff",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			res := ParseResponse(in)
			if res.Degraded() {
				require.Len(t, res.KeyFindings, 1)
				assert.Equal(t, ParseErrorFinding, res.KeyFindings[0].Name)
				assert.Equal(t, ConfidenceLow, res.KeyFindings[0].Confidence)
			}
		}, "input %q", in)
	}
}

func TestParseResponseNonObjectDegrades(t *testing.T) {
	for _, in := range []string{`[]`, `42`, `"just a string"`, `true`} {
		res := ParseResponse(in)
		assert.True(t, res.Degraded(), in)
		assert.Equal(t, ParseFailureNotice, res.ExecutiveSummary, in)
	}
}

func TestParseResponseLooseValuesKeepTheRest(t *testing.T) {
	res := ParseResponse(`{
	  "executive_summary": "Three leads [1][2][3].",
	  "key_findings": [
	    {"name": "A", "description": "clean", "source_indices": [1], "confidence": "high"},
	    {"name": "B", "description": "string index", "source_indices": ["2", "two", null], "confidence": 0.9},
	    {"name": "C", "description": "float index", "source_indices": [3.0, 2.5], "confidence": "medium"},
	    "stray text",
	    {"name": "D", "source_indices": "1"}
	  ],
	  "bibliography": {"ai_generated": ["x", 7, {"title": "y"}], "external": "not a list"}
	}`)

	assert.False(t, res.Degraded())
	assert.Equal(t, "Three leads [1][2][3].", res.ExecutiveSummary)
	assert.Equal(t, []Finding{
		{Name: "A", Description: "clean", SourceIndices: []int{1}, Confidence: ConfidenceHigh},
		{Name: "B", Description: "string index", SourceIndices: []int{2}, Confidence: ConfidenceLow},
		{Name: "C", Description: "float index", SourceIndices: []int{3}, Confidence: ConfidenceMedium},
		{Name: "D", Description: "", SourceIndices: []int{}, Confidence: ConfidenceLow},
	}, res.KeyFindings)
	assert.Equal(t, Bibliography{AIGenerated: []string{"x", "7"}, External: []string{}}, res.Bibliography)
}

func TestParseResponseScalarSummary(t *testing.T) {
	res := ParseResponse(`{"executive_summary": 42, "key_findings": "not a list"}`)
	assert.False(t, res.Degraded())
	assert.Equal(t, "42", res.ExecutiveSummary)
	assert.Equal(t, []Finding{}, res.KeyFindings)
}

func TestParseResponseEmptyText(t *testing.T) {
	res := ParseResponse(" \n ")
	assert.True(t, res.Degraded())
	require.Len(t, res.KeyFindings, 1)
	assert.Equal(t, "unexpected end of JSON input", res.KeyFindings[0].Description)
}

func TestParseResponseNullIsEmpty(t *testing.T) {
	res := ParseResponse("null")
	assert.False(t, res.Degraded())
	assert.Equal(t, "", res.ExecutiveSummary)
	assert.Empty(t, res.KeyFindings)
}

func TestParseResponseToleratesOutOfRangeIndices(t *testing.T) {
	res := ParseResponse(`{"key_findings": [{"name": "a", "source_indices": [99, -1], "confidence": "high"}], "bibliography": {"ai_generated": ["only one"]}}`)
	require.Len(t, res.KeyFindings, 1)
	assert.Equal(t, []int{99, -1}, res.KeyFindings[0].SourceIndices)
}

func TestFailureResult(t *testing.T) {
	res := FailureResult(assert.AnError)
	assert.Equal(t, "Research failed: "+assert.AnError.Error(), res.ExecutiveSummary)
	assert.Equal(t, []Finding{}, res.KeyFindings)
	assert.Equal(t, EmptyBibliography(), res.Bibliography)
	assert.True(t, res.Degraded())
}

func TestStripCodeFenceOnlyOnce(t *testing.T) {
	assert.Equal(t, "```json\n{}", stripCodeFence("```json\n```json\n{}\n```"))
	assert.Equal(t, "{}", stripCodeFence("```json{}```"))
	assert.Equal(t, "{} ```", stripCodeFence("{} ``````"))
}
