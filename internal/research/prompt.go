package research

import (
	"fmt"
	"strings"
)

// MaxPromptFacts caps how many knowledge base facts are sent with a query.
const MaxPromptFacts = 20

// SystemInstruction pins the output schema and research rules for every call.
const SystemInstruction = `You are AiM, a research assistant for documentary producers.

Your job is deep research: gather verified facts, identify the key people, events and places, and help the producer build a knowledge base for their episode.

Reply with a single JSON object and nothing else. Do not wrap it in markdown. Use exactly this shape:
{
  "executive_summary": "A dense narrative paragraph citing sources inline as [n]",
  "key_findings": [
    {
      "name": "Person, event or fact",
      "description": "What it is and why it matters, with context",
      "source_indices": [1, 2],
      "confidence": "high|medium|low"
    }
  ],
  "bibliography": {
    "ai_generated": ["Description of source 1", "Description of source 2"],
    "external": ["URL or reference 1", "URL or reference 2"]
  }
}

Rules:
1. Every finding carries a confidence (high, medium or low) and the source indices that support it.
2. Check the existing knowledge base you are given and do not repeat facts it already contains.
3. If an attached file does not match the query, say so plainly in the executive summary instead of ignoring it.
4. Aim for at least 10 key findings whenever the material supports it.
5. Never invent a source. If a claim cannot be verified, keep it but mark its confidence as low.
6. The [n] markers in the executive summary must point at entries in the bibliography.
7. Prefer what matters on screen: people, events, dates, locations, controversies and lesser-known details.`

// BuildPrompt renders the user prompt for a research query. It is pure:
// equal inputs always produce the same text.
func BuildPrompt(q ResearchQuery) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Series: %s\n", q.SeriesTitle)
	fmt.Fprintf(&b, "- Episode: %s\n", q.EpisodeTitle)
	fmt.Fprintf(&b, "- Episode Brief: %s\n", q.EpisodeBrief)

	if facts := renderFacts(q.ExistingKB); facts != "" {
		b.WriteString("\n")
		b.WriteString(facts)
	}

	fmt.Fprintf(&b, "\nResearch Query: %s\n\n", q.Query)
	b.WriteString("Perform comprehensive deep research on this query. Gather verified facts, " +
		"identify key people and events, and cite your sources. Respond with valid JSON only.")

	// Only the file name is mentioned; contents are not ingested.
	for _, f := range q.AttachedFiles {
		if f.URL == "" {
			continue
		}
		name := f.Name
		if name == "" {
			name = "Unknown file"
		}
		fmt.Fprintf(&b, "\n\nAttached file for analysis: %s", name)
	}

	return b.String()
}

// renderFacts lists the first MaxPromptFacts entries in store order.
func renderFacts(entries []KnowledgeBaseEntry) string {
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > MaxPromptFacts {
		entries = entries[:MaxPromptFacts]
	}
	var b strings.Builder
	b.WriteString("Existing verified facts:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", e.Fact)
	}
	return b.String()
}
