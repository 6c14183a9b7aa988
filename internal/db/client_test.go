package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/research"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestClient opens a private in-memory SQLite database with the schema applied.
// The clock advances one second per call so ordering is deterministic.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	raw, err := sqlx.Open(DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	raw.SetConnMaxLifetime(0)

	c := NewClientFromDB(raw, circuitbreaker.DatabaseSettings(), zaptest.NewLogger(t))
	tick := base
	c.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	require.NoError(t, c.Migrate(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func seedEpisode(t *testing.T, c *Client) research.EpisodeKey {
	t.Helper()
	ctx := context.Background()
	p, err := c.CreateProject(ctx, ProjectInput{Name: "Cold War Stories", Type: "series"})
	require.NoError(t, err)
	s, err := c.CreateSeries(ctx, p.ID, SeriesInput{Title: "WWII"})
	require.NoError(t, err)
	e, err := c.CreateEpisode(ctx, p.ID, s.ID, EpisodeInput{Title: "Midway", Brief: "Pacific turning point"})
	require.NoError(t, err)
	return research.EpisodeKey{ProjectID: p.ID, SeriesID: s.ID, EpisodeID: e.ID}
}

func TestConfigDSN(t *testing.T) {
	pg := Config{Driver: DriverPostgres, Host: "db", Port: 5432, User: "aim", Password: "pw", Database: "studio", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=aim password=pw dbname=studio sslmode=disable", pg.DSN())

	lite := Config{Driver: DriverSQLite}
	assert.Contains(t, lite.DSN(), ":memory:")

	lite.Path = "/tmp/studio.db"
	assert.Equal(t, "/tmp/studio.db", lite.DSN())
}

func TestSchemaForDriver(t *testing.T) {
	for _, stmt := range schemaFor(DriverSQLite) {
		assert.NotContains(t, stmt, "{{")
		assert.NotContains(t, stmt, "JSONB")
	}
	joined := ""
	for _, stmt := range schemaFor(DriverPostgres) {
		assert.NotContains(t, stmt, "{{")
		joined += stmt
	}
	assert.Contains(t, joined, "JSONB")
	assert.Contains(t, joined, "BIGSERIAL")
}

func TestProjectLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	p, err := c.CreateProject(ctx, ProjectInput{Name: "Cold War Stories", Type: "series", Description: "Archive-led"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, DefaultProducer(), p.Producer)

	got, err := c.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Archive-led", got.Description)
	assert.True(t, got.CreatedAt.Equal(p.CreatedAt))

	name := "Cold War Files"
	producer := Producer{Name: "Ana", Role: "EXEC"}
	updated, err := c.UpdateProject(ctx, p.ID, ProjectUpdate{Name: &name, Producer: &producer})
	require.NoError(t, err)
	assert.Equal(t, "Cold War Files", updated.Name)
	assert.Equal(t, "series", updated.Type)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	second, err := c.CreateProject(ctx, ProjectInput{Name: "Deep Sea", Type: "single"})
	require.NoError(t, err)

	all, err := c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, p.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, producer, all[0].Producer)
}

func TestProjectValidation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, ProjectInput{Type: "series"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "missing required field: name")

	_, err = c.CreateProject(ctx, ProjectInput{Name: "X"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	blank := "  "
	p, err := c.CreateProject(ctx, ProjectInput{Name: "X", Type: "series"})
	require.NoError(t, err)
	_, err = c.UpdateProject(ctx, p.ID, ProjectUpdate{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.ErrorIs(t, c.DeleteProject(ctx, "missing"), ErrNotFound)
}

func TestSeriesAndEpisodeOrdering(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	p, err := c.CreateProject(ctx, ProjectInput{Name: "P", Type: "series"})
	require.NoError(t, err)

	s1, err := c.CreateSeries(ctx, p.ID, SeriesInput{Title: "One"})
	require.NoError(t, err)
	s2, err := c.CreateSeries(ctx, p.ID, SeriesInput{Title: "Two"})
	require.NoError(t, err)
	assert.Equal(t, 1, s1.Order)
	assert.Equal(t, 2, s2.Order)

	e1, err := c.CreateEpisode(ctx, p.ID, s1.ID, EpisodeInput{Title: "Ep 1", Code: "S1E1"})
	require.NoError(t, err)
	assert.Equal(t, PhaseResearch, e1.CurrentPhase)
	assert.Equal(t, 0, e1.PhaseProgress)
	assert.Equal(t, 1, e1.Order)

	e2, err := c.CreateEpisode(ctx, p.ID, s1.ID, EpisodeInput{Title: "Ep 2"})
	require.NoError(t, err)
	assert.Equal(t, 2, e2.Order)

	// Episodes of another series do not share numbering
	other, err := c.CreateEpisode(ctx, p.ID, s2.ID, EpisodeInput{Title: "Other"})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Order)

	first := 5
	_, err = c.UpdateEpisode(ctx, p.ID, s1.ID, e1.ID, EpisodeUpdate{Order: &first})
	require.NoError(t, err)

	eps, err := c.ListEpisodes(ctx, p.ID, s1.ID)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, e2.ID, eps[0].ID)
	assert.Equal(t, e1.ID, eps[1].ID)

	series, err := c.ListSeries(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "One", series[0].Title)

	_, err = c.ListSeries(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.ListEpisodes(ctx, p.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.CreateEpisode(ctx, p.ID, "missing", EpisodeInput{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEpisodeValidation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := seedEpisode(t, c)

	_, err := c.CreateEpisode(ctx, key.ProjectID, key.SeriesID, EpisodeInput{Title: "x", CurrentPhase: "editing"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.CreateEpisode(ctx, key.ProjectID, key.SeriesID, EpisodeInput{Title: "x", PhaseProgress: 101})
	assert.ErrorIs(t, err, ErrInvalidInput)

	phase := PhaseScripting
	progress := 40
	e, err := c.UpdateEpisode(ctx, key.ProjectID, key.SeriesID, key.EpisodeID, EpisodeUpdate{CurrentPhase: &phase, PhaseProgress: &progress})
	require.NoError(t, err)
	assert.Equal(t, PhaseScripting, e.CurrentPhase)
	assert.Equal(t, 40, e.PhaseProgress)

	bad := -1
	_, err = c.UpdateEpisode(ctx, key.ProjectID, key.SeriesID, key.EpisodeID, EpisodeUpdate{PhaseProgress: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEpisodeContext(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := seedEpisode(t, c)

	ec, err := c.GetEpisodeContext(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, research.EpisodeContext{SeriesTitle: "WWII", EpisodeTitle: "Midway", EpisodeBrief: "Pacific turning point"}, ec)

	wrong := key
	wrong.SeriesID = "other"
	_, err = c.GetEpisodeContext(ctx, wrong)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := seedEpisode(t, c)

	older := &research.Report{
		Title:  "Battle of Midway",
		Query:  "Battle of Midway",
		Type:   research.ReportTypeAIBrief,
		Status: research.StatusDeepResearch,
		KeyFindings: []research.Finding{
			{Name: "Date", Description: "June 1942", SourceIndices: []int{0, 1}, Confidence: research.ConfidenceHigh},
		},
		Bibliography:  research.Bibliography{AIGenerated: []string{"Naval History"}, External: []string{}},
		LinkedAssets:  []research.LinkedAsset{},
		AttachedFiles: []research.AttachedFile{{Name: "map.pdf", URL: "https://example.org/map.pdf", Type: "application/pdf"}},
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	require.NoError(t, c.CreateReport(ctx, key, older))
	require.NotEmpty(t, older.ID)

	newer := &research.Report{
		Title:     "Notes",
		Type:      research.ReportTypeManual,
		Status:    research.StatusInProgress,
		CreatedAt: base.Add(time.Hour),
		UpdatedAt: base.Add(time.Hour),
	}
	require.NoError(t, c.CreateReport(ctx, key, newer))

	got, err := c.GetReport(ctx, key, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.KeyFindings, got.KeyFindings)
	assert.Equal(t, older.Bibliography, got.Bibliography)
	assert.Equal(t, older.AttachedFiles, got.AttachedFiles)
	assert.Equal(t, []research.LinkedAsset{}, got.LinkedAssets)
	assert.True(t, got.CreatedAt.Equal(base))

	// Nil slices come back empty, never null
	m, err := c.GetReport(ctx, key, newer.ID)
	require.NoError(t, err)
	assert.NotNil(t, m.KeyFindings)
	assert.NotNil(t, m.Bibliography.AIGenerated)
	assert.NotNil(t, m.AttachedFiles)

	list, err := c.ListReports(ctx, key)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	got.Status = research.StatusComplete
	got.LinkedAssets = []research.LinkedAsset{{AssetID: "a1", Name: "clip.mp4", URL: "https://x/clip.mp4", Type: "video"}}
	got.UpdatedAt = base.Add(2 * time.Hour)
	require.NoError(t, c.UpdateReport(ctx, key, got))

	again, err := c.GetReport(ctx, key, older.ID)
	require.NoError(t, err)
	assert.Equal(t, research.StatusComplete, again.Status)
	assert.Equal(t, got.LinkedAssets, again.LinkedAssets)

	_, err = c.GetReport(ctx, key, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ghost := &research.Report{ID: "missing", UpdatedAt: base}
	assert.ErrorIs(t, c.UpdateReport(ctx, key, ghost), ErrNotFound)
}

func TestKnowledgeBaseInsertionOrder(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := seedEpisode(t, c)

	facts := []string{"Zulu", "Alpha", "Mike"}
	for _, f := range facts {
		e := &research.KnowledgeBaseEntry{
			Fact:          f,
			SourceIndices: []int{2},
			Confidence:    research.ConfidenceMedium,
			Category:      research.CategoryEvent,
			CreatedAt:     base,
		}
		require.NoError(t, c.AddKnowledgeEntry(ctx, key, e))
	}

	list, err := c.ListKnowledgeEntries(ctx, key)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, f := range facts {
		assert.Equal(t, f, list[i].Fact)
		assert.Equal(t, []int{2}, list[i].SourceIndices)
	}
	assert.Empty(t, list[0].SourceReportID)
}

func TestCascadeDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := seedEpisode(t, c)

	require.NoError(t, c.CreateReport(ctx, key, &research.Report{
		Title: "r", Type: research.ReportTypeManual, Status: research.StatusInProgress, CreatedAt: base, UpdatedAt: base,
	}))
	require.NoError(t, c.AddKnowledgeEntry(ctx, key, &research.KnowledgeBaseEntry{
		Fact: "f", Confidence: research.ConfidenceLow, Category: research.CategoryGeneral, CreatedAt: base,
	}))

	require.NoError(t, c.DeleteEpisode(ctx, key.ProjectID, key.SeriesID, key.EpisodeID))
	reports, err := c.ListReports(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, reports)
	kb, err := c.ListKnowledgeEntries(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, kb)
	assert.ErrorIs(t, c.DeleteEpisode(ctx, key.ProjectID, key.SeriesID, key.EpisodeID), ErrNotFound)

	key = seedEpisode(t, c)
	require.NoError(t, c.DeleteProject(ctx, key.ProjectID))
	_, err = c.GetSeries(ctx, key.ProjectID, key.SeriesID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetEpisode(ctx, key.ProjectID, key.SeriesID, key.EpisodeID)
	assert.ErrorIs(t, err, ErrNotFound)

	key = seedEpisode(t, c)
	require.NoError(t, c.DeleteSeries(ctx, key.ProjectID, key.SeriesID))
	_, err = c.GetEpisode(ctx, key.ProjectID, key.SeriesID, key.EpisodeID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetProject(ctx, key.ProjectID)
	assert.NoError(t, err)
}

func TestDeleteProjectRollsBackOnFailure(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	c := NewClientFromDB(sqlx.NewDb(raw, "postgres"), circuitbreaker.DatabaseSettings(), zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM knowledge_base WHERE project_id = \$1`).
		WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM research_reports WHERE project_id = \$1`).
		WithArgs("p1").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = c.DeleteProject(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete research_reports")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReportsUsesPostgresPlaceholders(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	c := NewClientFromDB(sqlx.NewDb(raw, "postgres"), circuitbreaker.DatabaseSettings(), zaptest.NewLogger(t))

	mock.ExpectQuery(`FROM research_reports WHERE project_id = \$1 AND series_id = \$2 AND episode_id = \$3`).
		WithArgs("p", "s", "e").
		WillReturnError(errors.New("connection reset"))

	_, err = c.ListReports(context.Background(), research.EpisodeKey{ProjectID: "p", SeriesID: "s", EpisodeID: "e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list reports")
	assert.NoError(t, mock.ExpectationsWereMet())
}
