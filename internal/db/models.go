package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/research"
)

var (
	// ErrNotFound is returned when a document or one of its parents is missing
	ErrNotFound = research.ErrNotFound

	ErrInvalidInput = errors.New("invalid input")
)

// JSON stores a value as a JSON document (jsonb on PostgreSQL, TEXT on SQLite)
type JSON[T any] struct {
	V T
}

// Value implements the driver.Valuer interface
func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON[T]) Scan(value interface{}) error {
	var zero T
	switch v := value.(type) {
	case nil:
		j.V = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", value)
	}
}

// Producer is the person responsible for a project
type Producer struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// DefaultProducer is used when a project is created without one
func DefaultProducer() Producer {
	return Producer{Name: "Unknown", Role: "PRODUCER"}
}

// Project is the top-level container
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Producer    Producer  `json:"producer"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectInput creates a project. Name and Type are required.
type ProjectInput struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Producer    *Producer `json:"producer"`
}

// ProjectUpdate changes the provided fields only
type ProjectUpdate struct {
	Name        *string   `json:"name"`
	Type        *string   `json:"type"`
	Description *string   `json:"description"`
	Producer    *Producer `json:"producer"`
}

// Series groups episodes within a project
type Series struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SeriesInput creates a series. Title is required.
type SeriesInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// SeriesUpdate changes the provided fields only
type SeriesUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
}

// Phase is an episode's production stage
type Phase string

const (
	PhaseResearch   Phase = "research"
	PhaseArchive    Phase = "archive"
	PhaseScripting  Phase = "scripting"
	PhaseInterviews Phase = "interviews"
	PhaseVoiceover  Phase = "voiceover"
	PhaseAssembly   Phase = "assembly"
	PhaseReview     Phase = "review"
)

// Phases lists the workflow in production order
var Phases = []Phase{
	PhaseResearch, PhaseArchive, PhaseScripting, PhaseInterviews,
	PhaseVoiceover, PhaseAssembly, PhaseReview,
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Episode is the unit research is attached to
type Episode struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	SeriesID      string    `json:"series_id"`
	Title         string    `json:"title"`
	Code          string    `json:"code"`
	Brief         string    `json:"brief"`
	CurrentPhase  Phase     `json:"current_phase"`
	PhaseProgress int       `json:"phase_progress"`
	Order         int       `json:"order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EpisodeInput creates an episode. Title is required.
type EpisodeInput struct {
	Title         string `json:"title"`
	Code          string `json:"code"`
	Brief         string `json:"brief"`
	CurrentPhase  Phase  `json:"current_phase"`
	PhaseProgress int    `json:"phase_progress"`
}

// EpisodeUpdate changes the provided fields only
type EpisodeUpdate struct {
	Title         *string `json:"title"`
	Code          *string `json:"code"`
	Brief         *string `json:"brief"`
	CurrentPhase  *Phase  `json:"current_phase"`
	PhaseProgress *int    `json:"phase_progress"`
	Order         *int    `json:"order"`
}

func validateEpisode(phase Phase, progress int) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, phase)
	}
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: phase_progress must be between 0 and 100", ErrInvalidInput)
	}
	return nil
}

type projectRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Type        string         `db:"type"`
	Description string         `db:"description"`
	Producer    JSON[Producer] `db:"producer"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r projectRow) toModel() Project {
	return Project{
		ID:          r.ID,
		Name:        r.Name,
		Type:        r.Type,
		Description: r.Description,
		Producer:    r.Producer.V,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type seriesRow struct {
	ID          string    `db:"id"`
	ProjectID   string    `db:"project_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Order       int       `db:"sort_order"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r seriesRow) toModel() Series {
	return Series{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Title:       r.Title,
		Description: r.Description,
		Order:       r.Order,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type episodeRow struct {
	ID            string    `db:"id"`
	ProjectID     string    `db:"project_id"`
	SeriesID      string    `db:"series_id"`
	Title         string    `db:"title"`
	Code          string    `db:"code"`
	Brief         string    `db:"brief"`
	CurrentPhase  string    `db:"current_phase"`
	PhaseProgress int       `db:"phase_progress"`
	Order         int       `db:"sort_order"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r episodeRow) toModel() Episode {
	return Episode{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		SeriesID:      r.SeriesID,
		Title:         r.Title,
		Code:          r.Code,
		Brief:         r.Brief,
		CurrentPhase:  Phase(r.CurrentPhase),
		PhaseProgress: r.PhaseProgress,
		Order:         r.Order,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type reportRow struct {
	ID               string                        `db:"id"`
	ProjectID        string                        `db:"project_id"`
	SeriesID         string                        `db:"series_id"`
	EpisodeID        string                        `db:"episode_id"`
	Title            string                        `db:"title"`
	Query            string                        `db:"query"`
	Type             string                        `db:"type"`
	Status           string                        `db:"status"`
	ExecutiveSummary string                        `db:"executive_summary"`
	KeyFindings      JSON[[]research.Finding]      `db:"key_findings"`
	ProducerNotes    string                        `db:"producer_notes"`
	LinkedAssets     JSON[[]research.LinkedAsset]  `db:"linked_assets"`
	Bibliography     JSON[research.Bibliography]   `db:"bibliography"`
	AttachedFiles    JSON[[]research.AttachedFile] `db:"attached_files"`
	CreatedAt        time.Time                     `db:"created_at"`
	UpdatedAt        time.Time                     `db:"updated_at"`
}

func (r reportRow) toModel() research.Report {
	out := research.Report{
		ID:               r.ID,
		Title:            r.Title,
		Query:            r.Query,
		Type:             research.ReportType(r.Type),
		Status:           research.Status(r.Status),
		ExecutiveSummary: r.ExecutiveSummary,
		KeyFindings:      r.KeyFindings.V,
		ProducerNotes:    r.ProducerNotes,
		LinkedAssets:     r.LinkedAssets.V,
		Bibliography:     r.Bibliography.V,
		AttachedFiles:    r.AttachedFiles.V,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if out.KeyFindings == nil {
		out.KeyFindings = []research.Finding{}
	}
	if out.LinkedAssets == nil {
		out.LinkedAssets = []research.LinkedAsset{}
	}
	if out.AttachedFiles == nil {
		out.AttachedFiles = []research.AttachedFile{}
	}
	if out.Bibliography.AIGenerated == nil {
		out.Bibliography.AIGenerated = []string{}
	}
	if out.Bibliography.External == nil {
		out.Bibliography.External = []string{}
	}
	return out
}

type knowledgeRow struct {
	Seq            int64       `db:"seq"`
	ID             string      `db:"id"`
	ProjectID      string      `db:"project_id"`
	SeriesID       string      `db:"series_id"`
	EpisodeID      string      `db:"episode_id"`
	Fact           string      `db:"fact"`
	SourceReportID string      `db:"source_report_id"`
	SourceIndices  JSON[[]int] `db:"source_indices"`
	Confidence     string      `db:"confidence"`
	Category       string      `db:"category"`
	CreatedAt      time.Time   `db:"created_at"`
}

func (r knowledgeRow) toModel() research.KnowledgeBaseEntry {
	indices := r.SourceIndices.V
	if indices == nil {
		indices = []int{}
	}
	return research.KnowledgeBaseEntry{
		ID:             r.ID,
		Fact:           r.Fact,
		SourceReportID: r.SourceReportID,
		SourceIndices:  indices,
		Confidence:     research.Confidence(r.Confidence),
		Category:       research.Category(r.Category),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}
