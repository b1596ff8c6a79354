package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

const schemaLockKey int64 = 2026101801

// DocumentRepository serves document metadata and stored chunk text.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	knowledge_base_id TEXT,
	title TEXT NOT NULL DEFAULT '',
	url TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
	PRIMARY KEY (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant_kb ON documents(tenant_id, knowledge_base_id);
CREATE INDEX IF NOT EXISTS idx_document_chunks_tsv ON document_chunks USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_document_chunks_trgm ON document_chunks USING GIN (content gin_trgm_ops);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// GetDocumentMeta returns nil when the document does not exist or belongs to another tenant.
func (r *DocumentRepository) GetDocumentMeta(ctx context.Context, documentID, tenantID string) (*domain.DocumentMeta, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, COALESCE(knowledge_base_id, ''), title, COALESCE(url, '')
FROM documents
WHERE id = $1 AND tenant_id = $2
`, documentID, tenantID)

	var meta domain.DocumentMeta
	err := row.Scan(&meta.ID, &meta.TenantID, &meta.KnowledgeBaseID, &meta.Title, &meta.URL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan document meta: %w", err)
	}
	return &meta, nil
}

func (r *DocumentRepository) GetChunkText(ctx context.Context, documentID string, chunkIndex int, maxChars int) (string, bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT content
FROM document_chunks
WHERE document_id = $1 AND chunk_index = $2
`, documentID, chunkIndex)

	var text string
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scan chunk text: %w", err)
	}
	if maxChars > 0 {
		if runes := []rune(text); len(runes) > maxChars {
			text = string(runes[:maxChars])
		}
	}
	return text, true, nil
}
