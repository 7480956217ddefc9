package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNotFound indicates the requested passage does not exist.
var ErrNotFound = errors.New("passage not found")

// passageCols is the standard SELECT column list for scanPassages.
const passageCols = `id, org_id, knowledge_base_id, title, content, source,
	tags, embedding, active, created_at, updated_at`

const upsertPassageSQL = `INSERT INTO passages
	(id, org_id, knowledge_base_id, title, content, source, tags, embedding, active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		content = EXCLUDED.content,
		source = EXCLUDED.source,
		tags = EXCLUDED.tags,
		embedding = EXCLUDED.embedding,
		active = EXCLUDED.active,
		updated_at = now()`

// PGStore manages passages backed by PostgreSQL + pgvector.
//
// PGStore is safe for concurrent use by multiple goroutines.
type PGStore struct {
	db     querier
	logger *slog.Logger
}

// NewPGStore creates a passage store over db (a pool or transaction).
func NewPGStore(db querier, logger *slog.Logger) (*PGStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{db: db, logger: logger}, nil
}

// Upsert inserts or updates a passage by ID.
func (s *PGStore) Upsert(ctx context.Context, p Passage) error {
	if p.ID == "" {
		return fmt.Errorf("passage id is required")
	}
	if p.OrgID == "" {
		return fmt.Errorf("passage org id is required")
	}

	_, err := s.db.Exec(ctx, upsertPassageSQL,
		p.ID, p.OrgID, p.KnowledgeBaseID, p.Title, p.Content, p.Source,
		p.Tags, pgvector.NewVector(p.Embedding), p.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert passage %s: %w", p.ID, err)
	}

	s.logger.Debug("passage upserted", "id", p.ID, "kb", p.KnowledgeBaseID)
	return nil
}

// ListActive returns every active passage matching the filter, embeddings
// included. Ordering is stable (created_at, id) so callers merging result
// sets stay deterministic.
func (s *PGStore) ListActive(ctx context.Context, f Filter) ([]Passage, error) {
	if f.OrgID == "" {
		return nil, fmt.Errorf("filter org id is required")
	}

	sql := `SELECT ` + passageCols + ` FROM passages WHERE active = true AND org_id = $1`
	args := []any{f.OrgID}
	if len(f.KnowledgeBaseIDs) > 0 {
		sql += ` AND knowledge_base_id = ANY($2)`
		args = append(args, f.KnowledgeBaseIDs)
	}
	sql += ` ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}
	defer rows.Close()

	return scanPassages(rows)
}

// Deactivate soft-deletes a passage so retrieval no longer sees it.
func (s *PGStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE passages SET active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate passage %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deactivate passage %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountActive counts active passages for a tenant.
func (s *PGStore) CountActive(ctx context.Context, orgID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM passages WHERE active = true AND org_id = $1`, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return n, nil
}

func scanPassages(rows pgx.Rows) ([]Passage, error) {
	var out []Passage
	for rows.Next() {
		var (
			p         Passage
			vec       pgvector.Vector
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(
			&p.ID, &p.OrgID, &p.KnowledgeBaseID, &p.Title, &p.Content, &p.Source,
			&p.Tags, &vec, &p.Active, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Embedding = vec.Slice()
		p.CreatedAt = createdAt
		p.UpdatedAt = updatedAt
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}
