package research

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrQueryRequired     = errors.New("missing required field: query")
	ErrFactRequired      = errors.New("missing required field: fact")
	ErrInvalidStatus     = errors.New("invalid report status")
	ErrInvalidTransition = errors.New("invalid report status transition")
	ErrInvalidType       = errors.New("invalid report type")
	ErrInvalidConfidence = errors.New("invalid confidence")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrReportIDRequired  = errors.New("missing required field: source_report_id")
	ErrInvalidFinding    = errors.New("invalid finding index")
)

// ReportType distinguishes AI-generated briefs from producer-authored reports.
type ReportType string

const (
	ReportTypeAIBrief ReportType = "ai_brief"
	ReportTypeManual  ReportType = "manual"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	return t == ReportTypeAIBrief || t == ReportTypeManual
}

// Status is the lifecycle state of a report.
type Status string

const (
	StatusDeepResearch Status = "deep_research"
	StatusInProgress   Status = "in_progress"
	StatusComplete     Status = "complete"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

func (s Status) rank() int {
	switch s {
	case StatusDeepResearch:
		return 0
	case StatusInProgress:
		return 1
	case StatusComplete:
		return 2
	default:
		return -1
	}
}

// Confidence grades how well a fact is supported by its sources.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is a known confidence level.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// normalizeConfidence folds model output onto the three known levels.
// Anything unrecognised is treated as unverified.
func normalizeConfidence(c Confidence) Confidence {
	n := Confidence(strings.ToLower(strings.TrimSpace(string(c))))
	if n.Valid() {
		return n
	}
	return ConfidenceLow
}

// Category classifies a knowledge base fact.
type Category string

const (
	CategoryPerson   Category = "person"
	CategoryEvent    Category = "event"
	CategoryLocation Category = "location"
	CategoryGeneral  Category = "general"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPerson, CategoryEvent, CategoryLocation, CategoryGeneral:
		return true
	}
	return false
}

// Finding is one discrete fact, person or event extracted by the model.
type Finding struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	SourceIndices []int      `json:"source_indices"`
	Confidence    Confidence `json:"confidence"`
}

// Bibliography holds the model-authored and external source lists that
// source indices point into. Indices are not renumbered or validated.
type Bibliography struct {
	AIGenerated []string `json:"ai_generated"`
	External    []string `json:"external"`
}

func (b Bibliography) normalized() Bibliography {
	if b.AIGenerated == nil {
		b.AIGenerated = []string{}
	}
	if b.External == nil {
		b.External = []string{}
	}
	return b
}

// EmptyBibliography returns a bibliography with both lists present and empty.
func EmptyBibliography() Bibliography {
	return Bibliography{AIGenerated: []string{}, External: []string{}}
}

// AttachedFile references an uploaded file sent along with a query.
type AttachedFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// LinkedAsset references an archive asset attached to a report after creation.
type LinkedAsset struct {
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Type    string `json:"type"`
}

// Report is a persisted research report belonging to an episode.
type Report struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Query            string         `json:"query"`
	Type             ReportType     `json:"type"`
	Status           Status         `json:"status"`
	ExecutiveSummary string         `json:"executive_summary"`
	KeyFindings      []Finding      `json:"key_findings"`
	ProducerNotes    string         `json:"producer_notes"`
	LinkedAssets     []LinkedAsset  `json:"linked_assets"`
	Bibliography     Bibliography   `json:"bibliography"`
	AttachedFiles    []AttachedFile `json:"attached_files"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// KnowledgeBaseEntry is an immutable, producer-accepted fact.
// SourceReportID is a lookup reference only; the report may no longer exist.
type KnowledgeBaseEntry struct {
	ID             string     `json:"id"`
	Fact           string     `json:"fact"`
	SourceReportID string     `json:"source_report_id,omitempty"`
	SourceIndices  []int      `json:"source_indices"`
	Confidence     Confidence `json:"confidence"`
	Category       Category   `json:"category"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EpisodeKey is the containment path of an episode.
type EpisodeKey struct {
	ProjectID string
	SeriesID  string
	EpisodeID string
}

// EpisodeContext is the series/episode information a query is researched against.
type EpisodeContext struct {
	SeriesTitle  string
	EpisodeTitle string
	EpisodeBrief string
}

// ResearchQuery is the per-request input to the pipeline. It is never persisted.
type ResearchQuery struct {
	Query         string
	SeriesTitle   string
	EpisodeTitle  string
	EpisodeBrief  string
	AttachedFiles []AttachedFile
	ExistingKB    []KnowledgeBaseEntry
}
