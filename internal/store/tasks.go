package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetTask(ctx context.Context, taskID int64) (Task, error) {
	var t Task
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, done, date, priority_id, project_id, user_id, author_id
		FROM task WHERE id=$1
	`, taskID).Scan(&t.ID, &t.Name, &t.Description, &t.Done, &t.Date, &t.PriorityID, &t.ProjectID, &t.AssigneeID, &t.AuthorID)
	return t, err
}

// ListTasksPaginated pages through a project's tasks ordered by due date
// then id, so equal-date tasks keep a stable order.
func (s *PostgresStore) ListTasksPaginated(ctx context.Context, projectID int64, page int) ([]Task, PageInfo, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task WHERE project_id=$1`, projectID).Scan(&total); err != nil {
		return nil, PageInfo{}, fmt.Errorf("count tasks: %w", err)
	}
	info := clampPage(page, PageSize, total)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, done, date, priority_id, project_id, user_id, author_id
		FROM task WHERE project_id=$1
		ORDER BY date ASC, id ASC
		LIMIT $2 OFFSET $3
	`, projectID, info.PageSize, info.offset())
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Done, &t.Date, &t.PriorityID, &t.ProjectID, &t.AssigneeID, &t.AuthorID); err != nil {
			return nil, PageInfo{}, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, PageInfo{}, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, info, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t Task) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO task (name, description, done, date, priority_id, project_id, user_id, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, t.Name, t.Description, t.Done, t.Date, t.PriorityID, t.ProjectID, t.AssigneeID, t.AuthorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// UpdateTask rewrites the editable fields. author_id is deliberately absent
// from the statement so the original author survives every edit.
func (s *PostgresStore) UpdateTask(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task SET name=$2, description=$3, done=$4, date=$5, priority_id=$6, user_id=$7
		WHERE id=$1
	`, t.ID, t.Name, t.Description, t.Done, t.Date, t.PriorityID, t.AssigneeID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// FinishTask marks a task done. The done=FALSE guard makes a repeat call a
// no-op; the bool result reports whether this call flipped the flag.
func (s *PostgresStore) FinishTask(ctx context.Context, taskID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE task SET done=TRUE WHERE id=$1 AND done=FALSE`, taskID)
	if err != nil {
		return false, fmt.Errorf("finish task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish task rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPriorities(ctx context.Context) ([]Priority, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM priority ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list priorities: %w", err)
	}
	defer rows.Close()

	items := make([]Priority, 0)
	for rows.Next() {
		var p Priority
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan priority: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priorities: %w", err)
	}
	return items, nil
}
