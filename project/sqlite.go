package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite, suitable for local and
// single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and initializes
// the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time; a single pooled connection also
	// keeps :memory: databases from being recreated per connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the tables if they don't exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		current_milestone TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		archived_at DATETIME,
		completed_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		data TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (project_id, type)
	);
	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		section_index INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		cost_delta REAL NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		UNIQUE (project_id, section_index)
	);
	CREATE TABLE IF NOT EXISTS cost_entries (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		agent_name TEXT NOT NULL,
		operation TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS completed_blogs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0,
		generation_time REAL NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_milestones_project ON milestones (project_id);
	CREATE INDEX IF NOT EXISTS idx_sections_project ON sections (project_id);
	CREATE INDEX IF NOT EXISTS idx_cost_entries_project ON cost_entries (project_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProject(ctx context.Context, name string, metadata map[string]any) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    StatusActive,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	metadataJSON, err := marshalJSON(metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, status, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Status, metadataJSON, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, current_milestone, metadata, created_at, updated_at, archived_at, completed_at
		 FROM projects WHERE id = ? AND status != ?`, id, StatusDeleted)
	return scanProject(row)
}

func (s *SQLiteStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, current_milestone, metadata, created_at, updated_at, archived_at, completed_at
		 FROM projects WHERE name = ? AND status != ?`, name, StatusDeleted)
	return scanProject(row)
}

func (s *SQLiteStore) ListProjects(ctx context.Context, status Status) ([]*Project, error) {
	query := `SELECT id, name, status, current_milestone, metadata, created_at, updated_at, archived_at, completed_at
		 FROM projects`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	} else {
		// Soft-deleted projects stay recoverable but are hidden from
		// unfiltered reads; ask for StatusDeleted explicitly to see them.
		query += ` WHERE status != ?`
		args = append(args, StatusDeleted)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) ArchiveProject(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, archived_at = ?, updated_at = ? WHERE id = ?`,
		StatusArchived, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string, permanent bool) error {
	if permanent {
		res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return requireRow(res)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		StatusDeleted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete project: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}

	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	for k, v := range metadata {
		p.Metadata[k] = v
	}

	metadataJSON, err := marshalJSON(p.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET metadata = ?, updated_at = ? WHERE id = ?`,
		metadataJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveMilestone(ctx context.Context, projectID string, typ MilestoneType, data, metadata map[string]any) error {
	dataJSON, err := marshalJSON(data)
	if err != nil {
		return err
	}
	metadataJSON, err := marshalJSON(metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO milestones (id, project_id, type, data, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, type) DO UPDATE SET
			data = excluded.data,
			metadata = excluded.metadata,
			created_at = excluded.created_at`,
		uuid.New().String(), projectID, typ, dataJSON, metadataJSON, now)
	if err != nil {
		return fmt.Errorf("failed to save milestone: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET current_milestone = ?, updated_at = ? WHERE id = ?`,
		typ, now, projectID)
	if err != nil {
		return fmt.Errorf("failed to update current milestone: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadMilestone(ctx context.Context, projectID string, typ MilestoneType) (*Milestone, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, type, data, metadata, created_at
		 FROM milestones WHERE project_id = ? AND type = ?`, projectID, typ)
	return scanMilestone(row)
}

func (s *SQLiteStore) ListMilestones(ctx context.Context, projectID string) ([]*Milestone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, type, data, metadata, created_at
		 FROM milestones WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

func (s *SQLiteStore) SaveSections(ctx context.Context, projectID string, sections []*Section) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Full replacement keeps the section set consistent with the outline
	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}

	now := time.Now().UTC()
	for _, sec := range sections {
		status := sec.Status
		if status == "" {
			status = SectionPending
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sections (id, project_id, section_index, title, content, status, cost_delta, input_tokens, output_tokens, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), projectID, sec.SectionIndex, sec.Title, sec.Content,
			status, sec.CostDelta, sec.InputTokens, sec.OutputTokens, now)
		if err != nil {
			return fmt.Errorf("failed to save section %d: %w", sec.SectionIndex, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadSections(ctx context.Context, projectID string) ([]*Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, section_index, title, content, status, cost_delta, input_tokens, output_tokens, updated_at
		 FROM sections WHERE project_id = ? ORDER BY section_index ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	defer rows.Close()

	var sections []*Section
	for rows.Next() {
		var sec Section
		err := rows.Scan(&sec.ID, &sec.ProjectID, &sec.SectionIndex, &sec.Title, &sec.Content,
			&sec.Status, &sec.CostDelta, &sec.InputTokens, &sec.OutputTokens, &sec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, &sec)
	}
	return sections, rows.Err()
}

func (s *SQLiteStore) UpdateSectionStatus(ctx context.Context, projectID string, sectionIndex int, status SectionStatus, costDelta float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sections SET status = ?, cost_delta = ?, updated_at = ? WHERE project_id = ? AND section_index = ?`,
		status, costDelta, time.Now().UTC(), projectID, sectionIndex)
	if err != nil {
		return fmt.Errorf("failed to update section status: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) TrackCost(ctx context.Context, projectID string, entry *CostEntry) error {
	metadataJSON, err := marshalJSON(entry.Metadata)
	if err != nil {
		return err
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cost_entries (id, project_id, agent_name, operation, model, input_tokens, output_tokens, cost, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), projectID, entry.AgentName, entry.Operation, entry.Model,
		entry.InputTokens, entry.OutputTokens, entry.Cost, metadataJSON, createdAt)
	if err != nil {
		return fmt.Errorf("failed to track cost: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCosts(ctx context.Context, projectID string) ([]*CostEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, agent_name, operation, model, input_tokens, output_tokens, cost, metadata, created_at
		 FROM cost_entries WHERE project_id = ? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list costs: %w", err)
	}
	defer rows.Close()

	var entries []*CostEntry
	for rows.Next() {
		var e CostEntry
		var metadataJSON sql.NullString
		err := rows.Scan(&e.ID, &e.ProjectID, &e.AgentName, &e.Operation, &e.Model,
			&e.InputTokens, &e.OutputTokens, &e.Cost, &metadataJSON, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cost entry: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal cost metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) SaveCompletedBlog(ctx context.Context, projectID string, blog *CompletedBlog) error {
	metadataJSON, err := marshalJSON(blog.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO completed_blogs (id, project_id, title, content, word_count, total_cost, generation_time, version, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT (project_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			word_count = excluded.word_count,
			total_cost = excluded.total_cost,
			generation_time = excluded.generation_time,
			version = completed_blogs.version + 1,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		uuid.New().String(), projectID, blog.Title, blog.Content, blog.WordCount,
		blog.TotalCost, blog.GenerationTime, metadataJSON, now, now)
	if err != nil {
		return fmt.Errorf("failed to save completed blog: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET completed_at = ?, updated_at = ? WHERE id = ?`, now, now, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark project completed: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetCompletedBlog(ctx context.Context, projectID string) (*CompletedBlog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, content, word_count, total_cost, generation_time, version, metadata, created_at, updated_at
		 FROM completed_blogs WHERE project_id = ?`, projectID)

	var b CompletedBlog
	var metadataJSON sql.NullString
	err := row.Scan(&b.ID, &b.ProjectID, &b.Title, &b.Content, &b.WordCount,
		&b.TotalCost, &b.GenerationTime, &b.Version, &metadataJSON, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load completed blog: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &b.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blog metadata: %w", err)
		}
	}
	return &b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var currentMilestone sql.NullString
	var metadataJSON sql.NullString
	var archivedAt, completedAt sql.NullTime

	err := row.Scan(&p.ID, &p.Name, &p.Status, &currentMilestone, &metadataJSON,
		&p.CreatedAt, &p.UpdatedAt, &archivedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	if currentMilestone.Valid {
		p.CurrentMilestone = MilestoneType(currentMilestone.String)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project metadata: %w", err)
		}
	}
	if archivedAt.Valid {
		p.ArchivedAt = &archivedAt.Time
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return &p, nil
}

func scanMilestone(row rowScanner) (*Milestone, error) {
	var m Milestone
	var dataJSON string
	var metadataJSON sql.NullString

	err := row.Scan(&m.ID, &m.ProjectID, &m.Type, &dataJSON, &metadataJSON, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan milestone: %w", err)
	}

	if err := json.Unmarshal([]byte(dataJSON), &m.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal milestone data: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal milestone metadata: %w", err)
		}
	}
	return &m, nil
}

func marshalJSON(v map[string]any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json: %w", err)
	}
	return string(data), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
