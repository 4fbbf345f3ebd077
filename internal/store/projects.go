package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetProject(ctx context.Context, projectID int64) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, subtitle, description FROM project WHERE id=$1
	`, projectID).Scan(&p.ID, &p.Name, &p.Subtitle, &p.Description)
	return p, err
}

// ListProjectsPaginated returns the page of projects visible to the caller.
// Admins see every project; regular users only those they are a member of.
func (s *PostgresStore) ListProjectsPaginated(ctx context.Context, userID int64, admin bool, page int) ([]Project, PageInfo, error) {
	countQuery := `SELECT COUNT(*) FROM project`
	listQuery := `
		SELECT id, name, subtitle, description FROM project
		ORDER BY id ASC
		LIMIT $1 OFFSET $2
	`
	args := []any{}
	if !admin {
		countQuery = `
			SELECT COUNT(*) FROM project p
			JOIN user_has_project uhp ON uhp.project_id = p.id
			WHERE uhp.user_id = $1
		`
		listQuery = `
			SELECT p.id, p.name, p.subtitle, p.description FROM project p
			JOIN user_has_project uhp ON uhp.project_id = p.id
			WHERE uhp.user_id = $1
			ORDER BY p.id ASC
			LIMIT $2 OFFSET $3
		`
		args = append(args, userID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, PageInfo{}, fmt.Errorf("count projects: %w", err)
	}
	info := clampPage(page, PageSize, total)

	rows, err := s.db.QueryContext(ctx, listQuery, append(args, info.PageSize, info.offset())...)
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Subtitle, &p.Description); err != nil {
			return nil, PageInfo{}, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, PageInfo{}, fmt.Errorf("iterate projects: %w", err)
	}
	return items, info, nil
}

// CreateProject inserts the project and its initial membership set in one
// transaction. Duplicate member IDs are collapsed before insert.
func (s *PostgresStore) CreateProject(ctx context.Context, p Project, memberIDs []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO project (name, subtitle, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`, p.Name, p.Subtitle, p.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}

	for _, userID := range dedupe(memberIDs) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_has_project (user_id, project_id) VALUES ($1, $2)
		`, userID, id); err != nil {
			return 0, fmt.Errorf("insert project member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create project: %w", err)
	}
	return id, nil
}

// UpdateProject rewrites the project row and replaces its membership set
// wholesale: the old links are deleted, then the new list is inserted.
func (s *PostgresStore) UpdateProject(ctx context.Context, p Project, memberIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE project SET name=$2, subtitle=$3, description=$4 WHERE id=$1
	`, p.ID, p.Name, p.Subtitle, p.Description); err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_has_project WHERE project_id=$1`, p.ID); err != nil {
		return fmt.Errorf("clear project members: %w", err)
	}
	for _, userID := range dedupe(memberIDs) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_has_project (user_id, project_id) VALUES ($1, $2)
		`, userID, p.ID); err != nil {
			return fmt.Errorf("insert project member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update project: %w", err)
	}
	return nil
}

// DeleteProject removes the project and every row that hangs off it. Child
// tables are cleared before the project row so the cascade is all-or-nothing.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		table string
		query string
	}{
		{"user_has_project", `DELETE FROM user_has_project WHERE project_id=$1`},
		{"note", `DELETE FROM note WHERE project_id=$1`},
		{"file", `DELETE FROM file WHERE project_id=$1`},
		{"message", `DELETE FROM message WHERE project_id=$1`},
		{"task", `DELETE FROM task WHERE project_id=$1`},
		{"project", `DELETE FROM project WHERE id=$1`},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, projectID); err != nil {
			return fmt.Errorf("delete project %s: %w", step.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete project: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_has_project WHERE user_id=$1 AND project_id=$2)
	`, userID, projectID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

// ListProjectMembers returns the project's members ordered by login for
// stable form rendering.
func (s *PostgresStore) ListProjectMembers(ctx context.Context, projectID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM user_has_project uhp
		JOIN users u ON u.id = uhp.user_id
		JOIN role r ON r.id = u.role_id
		WHERE uhp.project_id = $1
		ORDER BY u.login ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project members: %w", err)
	}
	return items, nil
}

// ListProjectTaskIDs returns the IDs of every task in a project. Used to
// purge search index entries before a cascade delete.
func (s *PostgresStore) ListProjectTaskIDs(ctx context.Context, projectID int64) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM task WHERE project_id=$1`, projectID)
}

// ListProjectMessageIDs returns the IDs of every message in a project.
func (s *PostgresStore) ListProjectMessageIDs(ctx context.Context, projectID int64) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM message WHERE project_id=$1`, projectID)
}

func (s *PostgresStore) listIDs(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// ListMemberProjectIDs returns the IDs of every project the user belongs
// to, for scoping search and listings.
func (s *PostgresStore) ListMemberProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id FROM user_has_project WHERE user_id=$1 ORDER BY project_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list member project ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListAllUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u JOIN role r ON r.id = u.role_id
		ORDER BY u.login ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
