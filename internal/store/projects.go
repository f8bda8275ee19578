package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectPaused   ProjectStatus = "paused"
	ProjectArchived ProjectStatus = "archived"
)

// Project groups tasks.
type Project struct {
	ID          int64
	Name        string
	Description string
	Status      ProjectStatus
	CreatedAt   time.Time
}

// CreateProject inserts a project. Names are unique.
func (q *Queries) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("project name is empty")
	}
	now := q.now()
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO projects (name, description, created_at) VALUES (?, ?, ?)`,
		name, description, toMicros(now))
	if err != nil {
		return nil, fmt.Errorf("insert project %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("project id: %w", err)
	}
	return &Project{
		ID:          id,
		Name:        name,
		Description: description,
		Status:      ProjectActive,
		CreatedAt:   fromMicros(toMicros(now)),
	}, nil
}

// ProjectByName looks a project up by name. Returns nil when absent.
func (q *Queries) ProjectByName(ctx context.Context, name string) (*Project, error) {
	var (
		p       Project
		status  string
		created int64
	)
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, description, status, created_at FROM projects WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &p.Description, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %q: %w", name, err)
	}
	p.Status = ProjectStatus(status)
	p.CreatedAt = fromMicros(created)
	return &p, nil
}

// EnsureProject returns the project called name, creating it when absent.
func (q *Queries) EnsureProject(ctx context.Context, name string) (*Project, error) {
	p, err := q.ProjectByName(ctx, strings.TrimSpace(name))
	if err != nil || p != nil {
		return p, err
	}
	return q.CreateProject(ctx, name, "")
}

// ListProjects returns all projects ordered by name.
func (q *Queries) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, name, description, status, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var (
			p       Project
			status  string
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &status, &created); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Status = ProjectStatus(status)
		p.CreatedAt = fromMicros(created)
		out = append(out, &p)
	}
	return out, rows.Err()
}
