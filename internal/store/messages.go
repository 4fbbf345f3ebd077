package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetMessage(ctx context.Context, messageID int64) (Message, error) {
	var m Message
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content, date, project_id, user_id FROM message WHERE id=$1
	`, messageID).Scan(&m.ID, &m.Content, &m.Date, &m.ProjectID, &m.UserID)
	return m, err
}

// ListMessagesPaginated pages a project's messages newest-first.
func (s *PostgresStore) ListMessagesPaginated(ctx context.Context, projectID int64, page int) ([]Message, PageInfo, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message WHERE project_id=$1`, projectID).Scan(&total); err != nil {
		return nil, PageInfo{}, fmt.Errorf("count messages: %w", err)
	}
	info := clampPage(page, PageSize, total)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, date, project_id, user_id
		FROM message WHERE project_id=$1
		ORDER BY date DESC, id DESC
		LIMIT $2 OFFSET $3
	`, projectID, info.PageSize, info.offset())
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Date, &m.ProjectID, &m.UserID); err != nil {
			return nil, PageInfo{}, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, PageInfo{}, fmt.Errorf("iterate messages: %w", err)
	}
	return items, info, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m Message) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO message (content, project_id, user_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, m.Content, m.ProjectID, m.UserID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// UpdateMessage touches content only; the timestamp and author stay as
// posted.
func (s *PostgresStore) UpdateMessage(ctx context.Context, messageID int64, content string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE message SET content=$2 WHERE id=$1`, messageID, content)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM message WHERE id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
