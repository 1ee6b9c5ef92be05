package project

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBPool defines the interface for a pgx connection pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using PostgreSQL for production deployments.
type PostgresStore struct {
	pool DBPool
}

// NewPostgresStore connects to the database and initializes the schema.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool creates a store with an existing pool.
// Useful for testing with mocks.
func NewPostgresStoreWithPool(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the tables if they don't exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		current_milestone TEXT,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		archived_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		data JSONB NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (project_id, type)
	);
	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		section_index INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		cost_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
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
		cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS completed_blogs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		total_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		generation_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_milestones_project ON milestones (project_id);
	CREATE INDEX IF NOT EXISTS idx_sections_project ON sections (project_id);
	CREATE INDEX IF NOT EXISTS idx_cost_entries_project ON cost_entries (project_id);
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, name string, metadata map[string]any) (*Project, error) {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, status, metadata, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Status, []byte(metadataJSON), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

const pgProjectColumns = `id, name, status, current_milestone, metadata, created_at, updated_at, archived_at, completed_at`

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProjectColumns+` FROM projects WHERE id = $1 AND status != $2`, id, StatusDeleted)
	return scanPgProject(row)
}

func (s *PostgresStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProjectColumns+` FROM projects WHERE name = $1 AND status != $2`, name, StatusDeleted)
	return scanPgProject(row)
}

func (s *PostgresStore) ListProjects(ctx context.Context, status Status) ([]*Project, error) {
	query := `SELECT ` + pgProjectColumns + ` FROM projects`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	} else {
		query += ` WHERE status != $1`
		args = append(args, StatusDeleted)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanPgProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) ArchiveProject(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET status = $1, archived_at = $2, updated_at = $3 WHERE id = $4`,
		StatusArchived, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string, permanent bool) error {
	var tag pgconn.CommandTag
	var err error
	if permanent {
		tag, err = s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE projects SET status = $1, updated_at = $2 WHERE id = $3`,
			StatusDeleted, time.Now().UTC(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
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

	_, err = s.pool.Exec(ctx,
		`UPDATE projects SET metadata = $1, updated_at = $2 WHERE id = $3`,
		[]byte(metadataJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveMilestone(ctx context.Context, projectID string, typ MilestoneType, data, metadata map[string]any) error {
	dataJSON, err := marshalJSON(data)
	if err != nil {
		return err
	}
	metadataJSON, err := marshalJSON(metadata)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO milestones (id, project_id, type, data, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (project_id, type) DO UPDATE SET
			data = EXCLUDED.data,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at`,
		uuid.New().String(), projectID, typ, []byte(dataJSON), []byte(metadataJSON), now)
	if err != nil {
		return fmt.Errorf("failed to save milestone: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE projects SET current_milestone = $1, updated_at = $2 WHERE id = $3`,
		typ, now, projectID)
	if err != nil {
		return fmt.Errorf("failed to update current milestone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadMilestone(ctx context.Context, projectID string, typ MilestoneType) (*Milestone, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, type, data, metadata, created_at
		 FROM milestones WHERE project_id = $1 AND type = $2`, projectID, typ)
	return scanPgMilestone(row)
}

func (s *PostgresStore) ListMilestones(ctx context.Context, projectID string) ([]*Milestone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, type, data, metadata, created_at
		 FROM milestones WHERE project_id = $1 ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*Milestone
	for rows.Next() {
		m, err := scanPgMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

func (s *PostgresStore) SaveSections(ctx context.Context, projectID string, sections []*Section) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sections WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}

	now := time.Now().UTC()
	for _, sec := range sections {
		status := sec.Status
		if status == "" {
			status = SectionPending
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO sections (id, project_id, section_index, title, content, status, cost_delta, input_tokens, output_tokens, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New().String(), projectID, sec.SectionIndex, sec.Title, sec.Content,
			status, sec.CostDelta, sec.InputTokens, sec.OutputTokens, now)
		if err != nil {
			return fmt.Errorf("failed to save section %d: %w", sec.SectionIndex, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadSections(ctx context.Context, projectID string) ([]*Section, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, section_index, title, content, status, cost_delta, input_tokens, output_tokens, updated_at
		 FROM sections WHERE project_id = $1 ORDER BY section_index ASC`, projectID)
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

func (s *PostgresStore) UpdateSectionStatus(ctx context.Context, projectID string, sectionIndex int, status SectionStatus, costDelta float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sections SET status = $1, cost_delta = $2, updated_at = $3 WHERE project_id = $4 AND section_index = $5`,
		status, costDelta, time.Now().UTC(), projectID, sectionIndex)
	if err != nil {
		return fmt.Errorf("failed to update section status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TrackCost(ctx context.Context, projectID string, entry *CostEntry) error {
	metadataJSON, err := marshalJSON(entry.Metadata)
	if err != nil {
		return err
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cost_entries (id, project_id, agent_name, operation, model, input_tokens, output_tokens, cost, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), projectID, entry.AgentName, entry.Operation, entry.Model,
		entry.InputTokens, entry.OutputTokens, entry.Cost, []byte(metadataJSON), createdAt)
	if err != nil {
		return fmt.Errorf("failed to track cost: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCosts(ctx context.Context, projectID string) ([]*CostEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, agent_name, operation, model, input_tokens, output_tokens, cost, metadata, created_at
		 FROM cost_entries WHERE project_id = $1 ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list costs: %w", err)
	}
	defer rows.Close()

	var entries []*CostEntry
	for rows.Next() {
		var e CostEntry
		var metadataJSON []byte
		err := rows.Scan(&e.ID, &e.ProjectID, &e.AgentName, &e.Operation, &e.Model,
			&e.InputTokens, &e.OutputTokens, &e.Cost, &metadataJSON, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cost entry: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal cost metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) SaveCompletedBlog(ctx context.Context, projectID string, blog *CompletedBlog) error {
	metadataJSON, err := marshalJSON(blog.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO completed_blogs (id, project_id, title, content, word_count, total_cost, generation_time, version, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10)
		 ON CONFLICT (project_id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			word_count = EXCLUDED.word_count,
			total_cost = EXCLUDED.total_cost,
			generation_time = EXCLUDED.generation_time,
			version = completed_blogs.version + 1,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), projectID, blog.Title, blog.Content, blog.WordCount,
		blog.TotalCost, blog.GenerationTime, []byte(metadataJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to save completed blog: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE projects SET completed_at = $1, updated_at = $2 WHERE id = $3`, now, now, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark project completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetCompletedBlog(ctx context.Context, projectID string) (*CompletedBlog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, title, content, word_count, total_cost, generation_time, version, metadata, created_at, updated_at
		 FROM completed_blogs WHERE project_id = $1`, projectID)

	var b CompletedBlog
	var metadataJSON []byte
	err := row.Scan(&b.ID, &b.ProjectID, &b.Title, &b.Content, &b.WordCount,
		&b.TotalCost, &b.GenerationTime, &b.Version, &metadataJSON, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load completed blog: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &b.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blog metadata: %w", err)
		}
	}
	return &b, nil
}

func scanPgProject(row pgx.Row) (*Project, error) {
	var p Project
	var currentMilestone *string
	var metadataJSON []byte
	var archivedAt, completedAt *time.Time

	err := row.Scan(&p.ID, &p.Name, &p.Status, &currentMilestone, &metadataJSON,
		&p.CreatedAt, &p.UpdatedAt, &archivedAt, &completedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	if currentMilestone != nil {
		p.CurrentMilestone = MilestoneType(*currentMilestone)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project metadata: %w", err)
		}
	}
	p.ArchivedAt = archivedAt
	p.CompletedAt = completedAt
	return &p, nil
}

func scanPgMilestone(row pgx.Row) (*Milestone, error) {
	var m Milestone
	var dataJSON []byte
	var metadataJSON []byte

	err := row.Scan(&m.ID, &m.ProjectID, &m.Type, &dataJSON, &metadataJSON, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan milestone: %w", err)
	}

	if err := json.Unmarshal(dataJSON, &m.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal milestone data: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal milestone metadata: %w", err)
		}
	}
	return &m, nil
}
