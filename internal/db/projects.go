package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
)

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: missing required field: %s", ErrInvalidInput, name)
	}
	return nil
}

const projectColumns = `id, name, type, description, producer, created_at, updated_at`

// ListProjects returns all projects in creation order
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var rows []projectRow
	if err := c.db.SelectContext(ctx, &rows,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	out := make([]Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetProject returns a project by id
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var row projectRow
	if err := c.db.GetContext(ctx, &row,
		c.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id); err != nil {
		return nil, mapNoRows(err)
	}
	p := row.toModel()
	return &p, nil
}

// CreateProject stores a new project
func (c *Client) CreateProject(ctx context.Context, in ProjectInput) (*Project, error) {
	if err := requireField("name", in.Name); err != nil {
		return nil, err
	}
	if err := requireField("type", in.Type); err != nil {
		return nil, err
	}

	producer := DefaultProducer()
	if in.Producer != nil {
		producer = *in.Producer
	}
	now := c.now()
	row := projectRow{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Type:        in.Type,
		Description: in.Description,
		Producer:    JSON[Producer]{V: producer},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := c.db.ExecContext(ctx, c.q(`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		row.ID, row.Name, row.Type, row.Description, row.Producer, row.CreatedAt, row.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	c.logger.Info("Project created", zap.String("project_id", row.ID), zap.String("name", row.Name))
	p := row.toModel()
	return &p, nil
}

// UpdateProject merges the provided fields into a project
func (c *Client) UpdateProject(ctx context.Context, id string, u ProjectUpdate) (*Project, error) {
	p, err := c.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		if err := requireField("name", *u.Name); err != nil {
			return nil, err
		}
		p.Name = *u.Name
	}
	if u.Type != nil {
		if err := requireField("type", *u.Type); err != nil {
			return nil, err
		}
		p.Type = *u.Type
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Producer != nil {
		p.Producer = *u.Producer
	}
	p.UpdatedAt = c.now()

	res, err := c.db.ExecContext(ctx,
		c.q(`UPDATE projects SET name = ?, type = ?, description = ?, producer = ?, updated_at = ? WHERE id = ?`),
		p.Name, p.Type, p.Description, JSON[Producer]{V: p.Producer}, p.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes a project and everything beneath it in one transaction
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		for _, table := range []string{"knowledge_base", "research_reports", "episodes", "series"} {
			if _, err := tx.ExecContext(ctx, c.q(`DELETE FROM `+table+` WHERE project_id = ?`), id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, c.q(`DELETE FROM projects WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return expectAffected(res)
	})
	if err != nil {
		return err
	}
	c.logger.Info("Project deleted", zap.String("project_id", id))
	return nil
}

func expectAffected(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
