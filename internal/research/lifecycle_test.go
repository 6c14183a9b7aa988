package research

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func aiReport() Report {
	r := NewAIReport(sampleQuery(), Result{
		ExecutiveSummary: "summary",
		KeyFindings:      []Finding{{Name: "a", SourceIndices: []int{1}, Confidence: ConfidenceHigh}},
		Bibliography:     Bibliography{AIGenerated: []string{"src"}, External: []string{}},
	}, t0)
	r.ID = "r1"
	return r
}

func TestNewAIReportStartsInDeepResearch(t *testing.T) {
	r := aiReport()
	assert.Equal(t, StatusDeepResearch, r.Status)
	assert.Equal(t, ReportTypeAIBrief, r.Type)
	assert.Equal(t, "Who funded the 1968 expedition?", r.Title)
	assert.Equal(t, "", r.ProducerNotes)
	assert.Equal(t, []LinkedAsset{}, r.LinkedAssets)
	assert.Equal(t, []AttachedFile{}, r.AttachedFiles)
	assert.Equal(t, t0, r.CreatedAt)
	assert.Equal(t, t0, r.UpdatedAt)
}

func TestTitleFromQueryTruncates(t *testing.T) {
	long := strings.Repeat("a", 150)
	assert.Len(t, TitleFromQuery(long), 100)
	assert.Equal(t, "short", TitleFromQuery("  short  "))

	multibyte := strings.Repeat("é", 120)
	assert.Equal(t, 100, len([]rune(TitleFromQuery(multibyte))))
}

func TestCompleteChangesOnlyStatusAndUpdatedAt(t *testing.T) {
	before := aiReport()
	after := Complete(before, t1)

	assert.Equal(t, StatusComplete, after.Status)
	assert.Equal(t, t1, after.UpdatedAt)

	after.Status = before.Status
	after.UpdatedAt = before.UpdatedAt
	assert.Equal(t, before, after)
}

func TestCompleteIsIdempotent(t *testing.T) {
	r := Complete(Complete(aiReport(), t0), t1)
	assert.Equal(t, StatusComplete, r.Status)
	assert.Equal(t, t1, r.UpdatedAt)
}

func TestTransitionForwardOnly(t *testing.T) {
	r := aiReport()

	r, err := Transition(r, StatusInProgress, t1)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, r.Status)
	assert.Equal(t, t1, r.UpdatedAt)

	same, err := Transition(r, StatusInProgress, t1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, r, same)

	_, err = Transition(r, StatusDeepResearch, t1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	r = Complete(r, t1)
	_, err = Transition(r, StatusInProgress, t1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Transition(r, Status("archived"), t1)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDeepResearch, StatusComplete))
	assert.True(t, CanTransition(StatusInProgress, StatusInProgress))
	assert.False(t, CanTransition(StatusComplete, StatusDeepResearch))
	assert.False(t, CanTransition(Status(""), StatusComplete))
}

func TestLinkAssetAnyStatus(t *testing.T) {
	asset := LinkedAsset{AssetID: "a1", Name: "newsreel.mp4", URL: "https://example.org/a1", Type: "video"}

	for _, status := range []Status{StatusDeepResearch, StatusInProgress, StatusComplete} {
		r := aiReport()
		r.Status = status
		out := LinkAsset(r, asset, t1)
		assert.Equal(t, []LinkedAsset{asset}, out.LinkedAssets)
		assert.Equal(t, status, out.Status)
		assert.Equal(t, t1, out.UpdatedAt)
	}
}

func TestLinkAssetDoesNotAliasInput(t *testing.T) {
	r := aiReport()
	r.LinkedAssets = make([]LinkedAsset, 1, 4)
	r.LinkedAssets[0] = LinkedAsset{AssetID: "a0"}

	a := LinkAsset(r, LinkedAsset{AssetID: "a1"}, t1)
	b := LinkAsset(r, LinkedAsset{AssetID: "a2"}, t1)
	assert.Equal(t, "a1", a.LinkedAssets[1].AssetID)
	assert.Equal(t, "a2", b.LinkedAssets[1].AssetID)
}

func TestNewManualReport(t *testing.T) {
	r, err := NewManualReport(ManualReport{Title: "Archive notes", ProducerNotes: "call the museum"}, t0)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, r.Status)
	assert.Equal(t, ReportTypeManual, r.Type)
	assert.Equal(t, "Archive notes", r.Title)
	assert.Equal(t, EmptyBibliography(), r.Bibliography)

	r, err = NewManualReport(ManualReport{Query: "Who was the navigator?"}, t0)
	require.NoError(t, err)
	assert.Equal(t, "Who was the navigator?", r.Title)

	_, err = NewManualReport(ManualReport{}, t0)
	assert.ErrorIs(t, err, ErrQueryRequired)
}

func TestReportUpdateApply(t *testing.T) {
	r := aiReport()
	notes := "check the 1969 follow-up"
	status := StatusInProgress

	out, err := ReportUpdate{ProducerNotes: &notes, Status: &status}.Apply(r, t1)
	require.NoError(t, err)
	assert.Equal(t, notes, out.ProducerNotes)
	assert.Equal(t, StatusInProgress, out.Status)
	assert.Equal(t, r.Title, out.Title)
	assert.Equal(t, r.KeyFindings, out.KeyFindings)
	assert.Equal(t, t1, out.UpdatedAt)

	back := StatusDeepResearch
	_, err = ReportUpdate{Status: &back}.Apply(out, t1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
