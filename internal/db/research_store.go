package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/research"
)

var _ research.Store = (*Client)(nil)

const reportColumns = `id, project_id, series_id, episode_id, title, query, type, status, executive_summary,
	key_findings, producer_notes, linked_assets, bibliography, attached_files, created_at, updated_at`

const knowledgeColumns = `id, project_id, series_id, episode_id, fact, source_report_id, source_indices,
	confidence, category, created_at`

// GetEpisodeContext returns the titles and brief a research query runs against
func (c *Client) GetEpisodeContext(ctx context.Context, key research.EpisodeKey) (research.EpisodeContext, error) {
	var row struct {
		SeriesTitle  string `db:"series_title"`
		EpisodeTitle string `db:"episode_title"`
		EpisodeBrief string `db:"episode_brief"`
	}
	err := c.db.GetContext(ctx, &row, c.q(`
		SELECT s.title AS series_title, e.title AS episode_title, e.brief AS episode_brief
		FROM episodes e
		JOIN series s ON s.id = e.series_id AND s.project_id = e.project_id
		WHERE e.project_id = ? AND e.series_id = ? AND e.id = ?`),
		key.ProjectID, key.SeriesID, key.EpisodeID)
	if err != nil {
		return research.EpisodeContext{}, mapNoRows(err)
	}
	return research.EpisodeContext{
		SeriesTitle:  row.SeriesTitle,
		EpisodeTitle: row.EpisodeTitle,
		EpisodeBrief: row.EpisodeBrief,
	}, nil
}

// CreateReport stores a report. An empty ID is assigned.
func (c *Client) CreateReport(ctx context.Context, key research.EpisodeKey, r *research.Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := c.db.ExecContext(ctx,
		c.q(`INSERT INTO research_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, key.ProjectID, key.SeriesID, key.EpisodeID, r.Title, r.Query, string(r.Type), string(r.Status),
		r.ExecutiveSummary, JSON[[]research.Finding]{V: r.KeyFindings}, r.ProducerNotes,
		JSON[[]research.LinkedAsset]{V: r.LinkedAssets}, JSON[research.Bibliography]{V: r.Bibliography},
		JSON[[]research.AttachedFile]{V: r.AttachedFiles}, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetReport returns one report of an episode
func (c *Client) GetReport(ctx context.Context, key research.EpisodeKey, reportID string) (*research.Report, error) {
	var row reportRow
	err := c.db.GetContext(ctx, &row,
		c.q(`SELECT `+reportColumns+` FROM research_reports WHERE project_id = ? AND series_id = ? AND episode_id = ? AND id = ?`),
		key.ProjectID, key.SeriesID, key.EpisodeID, reportID)
	if err != nil {
		return nil, mapNoRows(err)
	}
	r := row.toModel()
	return &r, nil
}

// ListReports returns an episode's reports, newest first
func (c *Client) ListReports(ctx context.Context, key research.EpisodeKey) ([]research.Report, error) {
	var rows []reportRow
	err := c.db.SelectContext(ctx, &rows,
		c.q(`SELECT `+reportColumns+` FROM research_reports WHERE project_id = ? AND series_id = ? AND episode_id = ?
			ORDER BY created_at DESC, id DESC`),
		key.ProjectID, key.SeriesID, key.EpisodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	out := make([]research.Report, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// UpdateReport overwrites the mutable fields of a report
func (c *Client) UpdateReport(ctx context.Context, key research.EpisodeKey, r *research.Report) error {
	res, err := c.db.ExecContext(ctx, c.q(`
		UPDATE research_reports SET title = ?, status = ?, executive_summary = ?, key_findings = ?, producer_notes = ?,
			linked_assets = ?, bibliography = ?, attached_files = ?, updated_at = ?
		WHERE project_id = ? AND series_id = ? AND episode_id = ? AND id = ?`),
		r.Title, string(r.Status), r.ExecutiveSummary, JSON[[]research.Finding]{V: r.KeyFindings}, r.ProducerNotes,
		JSON[[]research.LinkedAsset]{V: r.LinkedAssets}, JSON[research.Bibliography]{V: r.Bibliography},
		JSON[[]research.AttachedFile]{V: r.AttachedFiles}, r.UpdatedAt,
		key.ProjectID, key.SeriesID, key.EpisodeID, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	return expectAffected(res)
}

// AddKnowledgeEntry appends an entry. An empty ID is assigned.
func (c *Client) AddKnowledgeEntry(ctx context.Context, key research.EpisodeKey, e *research.KnowledgeBaseEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := c.db.ExecContext(ctx,
		c.q(`INSERT INTO knowledge_base (`+knowledgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, key.ProjectID, key.SeriesID, key.EpisodeID, e.Fact, e.SourceReportID,
		JSON[[]int]{V: e.SourceIndices}, string(e.Confidence), string(e.Category), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge entry: %w", err)
	}
	return nil
}

// ListKnowledgeEntries returns an episode's entries in insertion order
func (c *Client) ListKnowledgeEntries(ctx context.Context, key research.EpisodeKey) ([]research.KnowledgeBaseEntry, error) {
	var rows []knowledgeRow
	err := c.db.SelectContext(ctx, &rows,
		c.q(`SELECT seq, `+knowledgeColumns+` FROM knowledge_base WHERE project_id = ? AND series_id = ? AND episode_id = ? ORDER BY seq`),
		key.ProjectID, key.SeriesID, key.EpisodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge base: %w", err)
	}
	out := make([]research.KnowledgeBaseEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
