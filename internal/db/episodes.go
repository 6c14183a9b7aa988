package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
)

const episodeColumns = `id, project_id, series_id, title, code, brief, current_phase, phase_progress, sort_order, created_at, updated_at`

// ListEpisodes returns a series' episodes by position
func (c *Client) ListEpisodes(ctx context.Context, projectID, seriesID string) ([]Episode, error) {
	if _, err := c.GetSeries(ctx, projectID, seriesID); err != nil {
		return nil, err
	}
	var rows []episodeRow
	if err := c.db.SelectContext(ctx, &rows,
		c.q(`SELECT `+episodeColumns+` FROM episodes WHERE project_id = ? AND series_id = ? ORDER BY sort_order, created_at`),
		projectID, seriesID); err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	out := make([]Episode, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetEpisode returns one episode
func (c *Client) GetEpisode(ctx context.Context, projectID, seriesID, episodeID string) (*Episode, error) {
	var row episodeRow
	if err := c.db.GetContext(ctx, &row,
		c.q(`SELECT `+episodeColumns+` FROM episodes WHERE project_id = ? AND series_id = ? AND id = ?`),
		projectID, seriesID, episodeID); err != nil {
		return nil, mapNoRows(err)
	}
	e := row.toModel()
	return &e, nil
}

// CreateEpisode appends an episode to a series. New episodes start in the
// research phase unless another phase is given.
func (c *Client) CreateEpisode(ctx context.Context, projectID, seriesID string, in EpisodeInput) (*Episode, error) {
	if err := requireField("title", in.Title); err != nil {
		return nil, err
	}
	if in.CurrentPhase == "" {
		in.CurrentPhase = PhaseResearch
	}
	if err := validateEpisode(in.CurrentPhase, in.PhaseProgress); err != nil {
		return nil, err
	}
	if _, err := c.GetSeries(ctx, projectID, seriesID); err != nil {
		return nil, err
	}

	now := c.now()
	row := episodeRow{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		SeriesID:      seriesID,
		Title:         in.Title,
		Code:          in.Code,
		Brief:         in.Brief,
		CurrentPhase:  string(in.CurrentPhase),
		PhaseProgress: in.PhaseProgress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		var counts []int
		if err := tx.SelectContext(ctx, &counts,
			c.q(`SELECT COUNT(*) FROM episodes WHERE project_id = ? AND series_id = ?`), projectID, seriesID); err != nil {
			return fmt.Errorf("failed to count episodes: %w", err)
		}
		row.Order = counts[0] + 1
		_, err := tx.ExecContext(ctx,
			c.q(`INSERT INTO episodes (`+episodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			row.ID, row.ProjectID, row.SeriesID, row.Title, row.Code, row.Brief,
			row.CurrentPhase, row.PhaseProgress, row.Order, row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create episode: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Episode created",
		zap.String("project_id", projectID),
		zap.String("series_id", seriesID),
		zap.String("episode_id", row.ID),
	)
	e := row.toModel()
	return &e, nil
}

// UpdateEpisode merges the provided fields into an episode
func (c *Client) UpdateEpisode(ctx context.Context, projectID, seriesID, episodeID string, u EpisodeUpdate) (*Episode, error) {
	e, err := c.GetEpisode(ctx, projectID, seriesID, episodeID)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		if err := requireField("title", *u.Title); err != nil {
			return nil, err
		}
		e.Title = *u.Title
	}
	if u.Code != nil {
		e.Code = *u.Code
	}
	if u.Brief != nil {
		e.Brief = *u.Brief
	}
	if u.CurrentPhase != nil {
		e.CurrentPhase = *u.CurrentPhase
	}
	if u.PhaseProgress != nil {
		e.PhaseProgress = *u.PhaseProgress
	}
	if u.Order != nil {
		e.Order = *u.Order
	}
	if err := validateEpisode(e.CurrentPhase, e.PhaseProgress); err != nil {
		return nil, err
	}
	e.UpdatedAt = c.now()

	res, err := c.db.ExecContext(ctx,
		c.q(`UPDATE episodes SET title = ?, code = ?, brief = ?, current_phase = ?, phase_progress = ?, sort_order = ?, updated_at = ?
			WHERE project_id = ? AND series_id = ? AND id = ?`),
		e.Title, e.Code, e.Brief, string(e.CurrentPhase), e.PhaseProgress, e.Order, e.UpdatedAt,
		projectID, seriesID, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to update episode: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEpisode removes an episode with its reports and knowledge base
func (c *Client) DeleteEpisode(ctx context.Context, projectID, seriesID, episodeID string) error {
	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		for _, table := range []string{"knowledge_base", "research_reports"} {
			if _, err := tx.ExecContext(ctx,
				c.q(`DELETE FROM `+table+` WHERE project_id = ? AND series_id = ? AND episode_id = ?`),
				projectID, seriesID, episodeID); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx,
			c.q(`DELETE FROM episodes WHERE project_id = ? AND series_id = ? AND id = ?`), projectID, seriesID, episodeID)
		if err != nil {
			return fmt.Errorf("failed to delete episode: %w", err)
		}
		return expectAffected(res)
	})
	if err != nil {
		return err
	}
	c.logger.Info("Episode deleted",
		zap.String("project_id", projectID),
		zap.String("series_id", seriesID),
		zap.String("episode_id", episodeID),
	)
	return nil
}
