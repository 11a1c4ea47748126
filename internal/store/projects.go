package store

import (
	"context"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/google/uuid"
)

const (
	projectColumns = `id, name, description, repository_url, is_active, created_at, updated_at`
	taskColumns    = `id, project_id, title, description, status, assignee_id, created_at, updated_at`
)

func (q *queries) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := q.timestamp()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := q.exec(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.RepositoryURL, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (q *queries) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := q.get(ctx, &p, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) ListProjects(ctx context.Context, skip, limit int) ([]models.Project, error) {
	skip, limit = ClampPage(skip, limit)
	projects := []models.Project{}
	err := q.selectAll(ctx, &projects, `
		SELECT `+projectColumns+` FROM projects
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, limit, skip)
	return projects, err
}

func (q *queries) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = "pending"
	}
	now := q.timestamp()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := q.exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.AssigneeID, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (q *queries) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	if err := q.get(ctx, &t, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) ListTasks(ctx context.Context, projectID uuid.UUID) ([]models.Task, error) {
	tasks := []models.Task{}
	err := q.selectAll(ctx, &tasks, `
		SELECT `+taskColumns+` FROM tasks
		WHERE project_id = ?
		ORDER BY created_at, id`, projectID)
	return tasks, err
}

func (q *queries) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = q.timestamp()
	return q.execOne(ctx, `
		UPDATE projects SET name = ?, description = ?, repository_url = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.RepositoryURL, p.IsActive, p.UpdatedAt, p.ID,
	)
}

// UpdateTask writes the mutable fields of t. The owning project never changes.
func (q *queries) UpdateTask(ctx context.Context, t *models.Task) error {
	t.UpdatedAt = q.timestamp()
	return q.execOne(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, assignee_id = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Status, t.AssigneeID, t.UpdatedAt, t.ID,
	)
}
