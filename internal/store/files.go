package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetFile(ctx context.Context, fileID int64) (File, error) {
	var f File
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, file, project_id, user_id FROM file WHERE id=$1
	`, fileID).Scan(&f.ID, &f.Name, &f.Description, &f.StoredName, &f.ProjectID, &f.UserID)
	return f, err
}

func (s *PostgresStore) ListFilesPaginated(ctx context.Context, projectID int64, page int) ([]File, PageInfo, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file WHERE project_id=$1`, projectID).Scan(&total); err != nil {
		return nil, PageInfo{}, fmt.Errorf("count files: %w", err)
	}
	info := clampPage(page, PageSize, total)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, file, project_id, user_id
		FROM file WHERE project_id=$1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, projectID, info.PageSize, info.offset())
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	items := make([]File, 0)
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.StoredName, &f.ProjectID, &f.UserID); err != nil {
			return nil, PageInfo{}, fmt.Errorf("scan file: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, PageInfo{}, fmt.Errorf("iterate files: %w", err)
	}
	return items, info, nil
}

// CreateFile records attachment metadata. The blob itself must already be
// in object storage under StoredName before this row is written.
func (s *PostgresStore) CreateFile(ctx context.Context, f File) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO file (name, description, file, project_id, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, f.Name, f.Description, f.StoredName, f.ProjectID, f.UserID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return id, nil
}

// UpdateFile edits metadata only. The stored blob is immutable; replacing
// content means uploading a new attachment.
func (s *PostgresStore) UpdateFile(ctx context.Context, fileID int64, name, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE file SET name=$2, description=$3 WHERE id=$1
	`, fileID, name, description)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file WHERE id=$1`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
