package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
)

const seriesColumns = `id, project_id, title, description, sort_order, created_at, updated_at`

// ListSeries returns a project's series by position
func (c *Client) ListSeries(ctx context.Context, projectID string) ([]Series, error) {
	if _, err := c.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	var rows []seriesRow
	if err := c.db.SelectContext(ctx, &rows,
		c.q(`SELECT `+seriesColumns+` FROM series WHERE project_id = ? ORDER BY sort_order, created_at`), projectID); err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	out := make([]Series, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetSeries returns one series of a project
func (c *Client) GetSeries(ctx context.Context, projectID, seriesID string) (*Series, error) {
	var row seriesRow
	if err := c.db.GetContext(ctx, &row,
		c.q(`SELECT `+seriesColumns+` FROM series WHERE project_id = ? AND id = ?`), projectID, seriesID); err != nil {
		return nil, mapNoRows(err)
	}
	s := row.toModel()
	return &s, nil
}

// CreateSeries appends a series to a project. Its order is one past the
// current number of series.
func (c *Client) CreateSeries(ctx context.Context, projectID string, in SeriesInput) (*Series, error) {
	if err := requireField("title", in.Title); err != nil {
		return nil, err
	}
	if _, err := c.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	now := c.now()
	row := seriesRow{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		var counts []int
		if err := tx.SelectContext(ctx, &counts, c.q(`SELECT COUNT(*) FROM series WHERE project_id = ?`), projectID); err != nil {
			return fmt.Errorf("failed to count series: %w", err)
		}
		row.Order = counts[0] + 1
		_, err := tx.ExecContext(ctx, c.q(`INSERT INTO series (`+seriesColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			row.ID, row.ProjectID, row.Title, row.Description, row.Order, row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create series: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Series created", zap.String("project_id", projectID), zap.String("series_id", row.ID))
	s := row.toModel()
	return &s, nil
}

// UpdateSeries merges the provided fields into a series
func (c *Client) UpdateSeries(ctx context.Context, projectID, seriesID string, u SeriesUpdate) (*Series, error) {
	s, err := c.GetSeries(ctx, projectID, seriesID)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		if err := requireField("title", *u.Title); err != nil {
			return nil, err
		}
		s.Title = *u.Title
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.Order != nil {
		s.Order = *u.Order
	}
	s.UpdatedAt = c.now()

	res, err := c.db.ExecContext(ctx,
		c.q(`UPDATE series SET title = ?, description = ?, sort_order = ?, updated_at = ? WHERE project_id = ? AND id = ?`),
		s.Title, s.Description, s.Order, s.UpdatedAt, projectID, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to update series: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSeries removes a series and its episodes, reports and knowledge base
func (c *Client) DeleteSeries(ctx context.Context, projectID, seriesID string) error {
	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		for _, table := range []string{"knowledge_base", "research_reports", "episodes"} {
			if _, err := tx.ExecContext(ctx,
				c.q(`DELETE FROM `+table+` WHERE project_id = ? AND series_id = ?`), projectID, seriesID); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, c.q(`DELETE FROM series WHERE project_id = ? AND id = ?`), projectID, seriesID)
		if err != nil {
			return fmt.Errorf("failed to delete series: %w", err)
		}
		return expectAffected(res)
	})
	if err != nil {
		return err
	}
	c.logger.Info("Series deleted", zap.String("project_id", projectID), zap.String("series_id", seriesID))
	return nil
}
