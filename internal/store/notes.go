package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetNote(ctx context.Context, noteID int64) (Note, error) {
	var n Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, project_id, user_id FROM note WHERE id=$1
	`, noteID).Scan(&n.ID, &n.Title, &n.Content, &n.ProjectID, &n.UserID)
	return n, err
}

// ListNotesPaginated pages notes within a project. Notes are private, so
// regular users only ever see their own; admins see every member's notes.
// The note listing uses a smaller window than the other collections.
func (s *PostgresStore) ListNotesPaginated(ctx context.Context, projectID, userID int64, admin bool, page int) ([]Note, PageInfo, error) {
	countQuery := `SELECT COUNT(*) FROM note WHERE project_id=$1 AND user_id=$2`
	listQuery := `
		SELECT id, title, content, project_id, user_id
		FROM note WHERE project_id=$1 AND user_id=$2
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`
	args := []any{projectID, userID}
	if admin {
		countQuery = `SELECT COUNT(*) FROM note WHERE project_id=$1`
		listQuery = `
			SELECT id, title, content, project_id, user_id
			FROM note WHERE project_id=$1
			ORDER BY id DESC
			LIMIT $2 OFFSET $3
		`
		args = []any{projectID}
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, PageInfo{}, fmt.Errorf("count notes: %w", err)
	}
	info := clampPage(page, NotePageSize, total)

	rows, err := s.db.QueryContext(ctx, listQuery, append(args, info.PageSize, info.offset())...)
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.ProjectID, &n.UserID); err != nil {
			return nil, PageInfo{}, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, PageInfo{}, fmt.Errorf("iterate notes: %w", err)
	}
	return items, info, nil
}

func (s *PostgresStore) CreateNote(ctx context.Context, n Note) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO note (title, content, project_id, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, n.Title, n.Content, n.ProjectID, n.UserID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, n Note) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE note SET title=$2, content=$3 WHERE id=$1
	`, n.ID, n.Title, n.Content)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM note WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
