package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgLike implements Searcher using PostgreSQL ILIKE matching as a fallback.
// It is slower than the search index but always available.
type PgLike struct {
	db *sql.DB
}

// NewPgLike creates a PostgreSQL fallback searcher.
func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgLike) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across project, task and message using
// case-insensitive substring matching.
func (p *PgLike) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + q.Text + "%"
	args := []any{pattern}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		where := "(p.name ILIKE $1 OR p.subtitle ILIKE $1 OR p.description ILIKE $1)"
		where += scopeFilter(q, "p.id")
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.name AS title,
				p.subtitle AS snippet, p.id AS project_id
			FROM project p
			WHERE %s`, where))
	}

	if q.FilterType == "" || q.FilterType == ResultTask {
		where := "(t.name ILIKE $1 OR t.description ILIKE $1)"
		where += scopeFilter(q, "t.project_id")
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.name AS title,
				left(t.description, 160) AS snippet, t.project_id
			FROM task t
			WHERE %s`, where))
	}

	if q.FilterType == "" || q.FilterType == ResultMessage {
		where := "m.content ILIKE $1"
		where += scopeFilter(q, "m.project_id")
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'message'::text AS type, m.id, ''::text AS title,
				left(m.content, 160) AS snippet, m.project_id
			FROM message m
			WHERE %s`, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id
		FROM (%s) sub
		ORDER BY type ASC, id DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pglike count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pglike query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("pglike scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// scopeFilter narrows a sub-query to the caller's projects. IDs are int64
// and interpolated directly, never user text.
func scopeFilter(q Query, column string) string {
	var sb strings.Builder
	if q.FilterProjectID != 0 {
		fmt.Fprintf(&sb, " AND %s = %d", column, q.FilterProjectID)
	}
	if q.ProjectIDs != nil {
		if len(q.ProjectIDs) == 0 {
			// Member of nothing: match nothing.
			sb.WriteString(" AND FALSE")
		} else {
			fmt.Fprintf(&sb, " AND %s IN (%s)", column, joinIDs(q.ProjectIDs))
		}
	}
	return sb.String()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgLike) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []TaskRecord, []MessageRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, subtitle, description FROM project
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var pr ProjectRecord
		if err := projectRows.Scan(&pr.ID, &pr.Name, &pr.Subtitle, &pr.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, pr)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	taskRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, project_id, done FROM task
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	tasks := make([]TaskRecord, 0)
	for taskRows.Next() {
		var tr TaskRecord
		if err := taskRows.Scan(&tr.ID, &tr.Name, &tr.Description, &tr.ProjectID, &tr.Done); err != nil {
			return nil, nil, nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, tr)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}

	messageRows, err := p.db.QueryContext(ctx, `
		SELECT id, content, project_id FROM message
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load messages: %w", err)
	}
	defer messageRows.Close()

	messages := make([]MessageRecord, 0)
	for messageRows.Next() {
		var mr MessageRecord
		if err := messageRows.Scan(&mr.ID, &mr.Content, &mr.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, mr)
	}
	if err := messageRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate messages: %w", err)
	}

	return projects, tasks, messages, nil
}
