package research

import (
	"fmt"
	"strings"
	"time"
)

// MaxTitleLength bounds report titles derived from a query.
const MaxTitleLength = 100

// CanTransition reports whether a report may move from one status to another.
// Statuses only move forward; staying put is allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.rank() >= from.rank()
}

// Transition moves r to status. A transition to the current status leaves r
// untouched.
func Transition(r Report, to Status, now time.Time) (Report, error) {
	if !to.Valid() {
		return r, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if r.Status == to {
		return r, nil
	}
	if !CanTransition(r.Status, to) {
		return r, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now.UTC()
	return r, nil
}

// Complete marks r complete. Only status and updated_at change; completing an
// already complete report just refreshes updated_at.
func Complete(r Report, now time.Time) Report {
	r.Status = StatusComplete
	r.UpdatedAt = now.UTC()
	return r
}

// LinkAsset appends asset to r. Assets can be linked in any status.
func LinkAsset(r Report, asset LinkedAsset, now time.Time) Report {
	assets := make([]LinkedAsset, 0, len(r.LinkedAssets)+1)
	assets = append(assets, r.LinkedAssets...)
	r.LinkedAssets = append(assets, asset)
	r.UpdatedAt = now.UTC()
	return r
}

// NewAIReport builds the persisted form of a pipeline result.
func NewAIReport(q ResearchQuery, res Result, now time.Time) Report {
	now = now.UTC()
	files := q.AttachedFiles
	if files == nil {
		files = []AttachedFile{}
	}
	findings := res.KeyFindings
	if findings == nil {
		findings = []Finding{}
	}
	return Report{
		Title:            TitleFromQuery(q.Query),
		Query:            q.Query,
		Type:             ReportTypeAIBrief,
		Status:           StatusDeepResearch,
		ExecutiveSummary: res.ExecutiveSummary,
		KeyFindings:      findings,
		ProducerNotes:    "",
		LinkedAssets:     []LinkedAsset{},
		Bibliography:     res.Bibliography.normalized(),
		AttachedFiles:    files,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ManualReport is producer-authored report input.
type ManualReport struct {
	Title            string
	Query            string
	ExecutiveSummary string
	ProducerNotes    string
	AttachedFiles    []AttachedFile
}

// NewManualReport builds a producer-authored report. It starts in progress.
func NewManualReport(in ManualReport, now time.Time) (Report, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = TitleFromQuery(in.Query)
	}
	if title == "" {
		return Report{}, ErrQueryRequired
	}
	now = now.UTC()
	files := in.AttachedFiles
	if files == nil {
		files = []AttachedFile{}
	}
	return Report{
		Title:            title,
		Query:            in.Query,
		Type:             ReportTypeManual,
		Status:           StatusInProgress,
		ExecutiveSummary: in.ExecutiveSummary,
		KeyFindings:      []Finding{},
		ProducerNotes:    in.ProducerNotes,
		LinkedAssets:     []LinkedAsset{},
		Bibliography:     EmptyBibliography(),
		AttachedFiles:    files,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// TitleFromQuery returns the first MaxTitleLength characters of the trimmed query.
func TitleFromQuery(query string) string {
	q := strings.TrimSpace(query)
	runes := []rune(q)
	if len(runes) > MaxTitleLength {
		return string(runes[:MaxTitleLength])
	}
	return q
}

// ReportUpdate carries the fields a producer may edit. Nil fields are left as is.
type ReportUpdate struct {
	Title            *string        `json:"title"`
	Status           *Status        `json:"status"`
	ExecutiveSummary *string        `json:"executive_summary"`
	ProducerNotes    *string        `json:"producer_notes"`
	KeyFindings      []Finding      `json:"key_findings"`
	Bibliography     *Bibliography  `json:"bibliography"`
	LinkedAssets     []LinkedAsset  `json:"linked_assets"`
	AttachedFiles    []AttachedFile `json:"attached_files"`
}

// Apply merges u into r. Status changes go through Transition.
func (u ReportUpdate) Apply(r Report, now time.Time) (Report, error) {
	if u.Status != nil {
		var err error
		if r, err = Transition(r, *u.Status, now); err != nil {
			return r, err
		}
	}
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.ExecutiveSummary != nil {
		r.ExecutiveSummary = *u.ExecutiveSummary
	}
	if u.ProducerNotes != nil {
		r.ProducerNotes = *u.ProducerNotes
	}
	if u.KeyFindings != nil {
		r.KeyFindings = u.KeyFindings
	}
	if u.Bibliography != nil {
		r.Bibliography = u.Bibliography.normalized()
	}
	if u.LinkedAssets != nil {
		r.LinkedAssets = u.LinkedAssets
	}
	if u.AttachedFiles != nil {
		r.AttachedFiles = u.AttachedFiles
	}
	r.UpdatedAt = now.UTC()
	return r, nil
}
