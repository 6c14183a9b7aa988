package research

import (
	"strings"
	"time"
)

// NewEntry is the producer input for a knowledge base fact. Empty confidence
// and category fall back to medium and general.
type NewEntry struct {
	Fact           string     `json:"fact"`
	SourceReportID string     `json:"source_report_id"`
	SourceIndices  []int      `json:"source_indices"`
	Confidence     Confidence `json:"confidence"`
	Category       Category   `json:"category"`
}

// Build validates n and fills defaults. The fact is stored exactly as given.
// No deduplication is attempted; the same fact may be added any number of times.
func (n NewEntry) Build(now time.Time) (KnowledgeBaseEntry, error) {
	if strings.TrimSpace(n.Fact) == "" {
		return KnowledgeBaseEntry{}, ErrFactRequired
	}

	conf := n.Confidence
	if conf == "" {
		conf = ConfidenceMedium
	}
	if !conf.Valid() {
		return KnowledgeBaseEntry{}, ErrInvalidConfidence
	}

	cat := n.Category
	if cat == "" {
		cat = CategoryGeneral
	}
	if !cat.Valid() {
		return KnowledgeBaseEntry{}, ErrInvalidCategory
	}

	indices := n.SourceIndices
	if indices == nil {
		indices = []int{}
	}

	return KnowledgeBaseEntry{
		Fact:           n.Fact,
		SourceReportID: n.SourceReportID,
		SourceIndices:  indices,
		Confidence:     conf,
		Category:       cat,
		CreatedAt:      now.UTC(),
	}, nil
}

// EntryFromFinding turns an accepted finding into knowledge base input.
func EntryFromFinding(reportID string, f Finding, category Category) NewEntry {
	fact := f.Name
	if f.Description != "" {
		fact = f.Name + ": " + f.Description
	}
	return NewEntry{
		Fact:           fact,
		SourceReportID: reportID,
		SourceIndices:  append([]int(nil), f.SourceIndices...),
		Confidence:     f.Confidence,
		Category:       category,
	}
}
