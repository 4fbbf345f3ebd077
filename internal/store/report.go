package store

import (
	"context"
	"fmt"
	"time"
)

// TaskDetail is a denormalized task row for report rendering.
type TaskDetail struct {
	Name     string
	Assignee string
	Priority string
	Date     time.Time
	Done     bool
}

// MessageDetail is a denormalized message row for report rendering.
type MessageDetail struct {
	Author  string
	Content string
	Date    time.Time
}

// ListTaskDetails returns every task of a project with its assignee login
// and priority name resolved, ordered by due date.
func (s *PostgresStore) ListTaskDetails(ctx context.Context, projectID int64) ([]TaskDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COALESCE(u.login, ''), p.name, t.date, t.done
		FROM task t
		JOIN priority p ON p.id = t.priority_id
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.project_id = $1
		ORDER BY t.date ASC, t.id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list task details: %w", err)
	}
	defer rows.Close()

	items := make([]TaskDetail, 0)
	for rows.Next() {
		var d TaskDetail
		if err := rows.Scan(&d.Name, &d.Assignee, &d.Priority, &d.Date, &d.Done); err != nil {
			return nil, fmt.Errorf("scan task detail: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task details: %w", err)
	}
	return items, nil
}

// ListMessageDetails returns the newest messages of a project with author
// logins resolved.
func (s *PostgresStore) ListMessageDetails(ctx context.Context, projectID int64, limit int) ([]MessageDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.login, m.content, m.date
		FROM message m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1
		ORDER BY m.date DESC, m.id DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list message details: %w", err)
	}
	defer rows.Close()

	items := make([]MessageDetail, 0)
	for rows.Next() {
		var d MessageDetail
		if err := rows.Scan(&d.Author, &d.Content, &d.Date); err != nil {
			return nil, fmt.Errorf("scan message detail: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message details: %w", err)
	}
	return items, nil
}
