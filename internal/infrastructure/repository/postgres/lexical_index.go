package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/lexical"
)

// LexicalIndex runs full-text and entity lookups over document_chunks.
type LexicalIndex struct {
	db *sql.DB
}

func NewLexicalIndex(db *sql.DB) *LexicalIndex {
	return &LexicalIndex{db: db}
}

// SearchLexical ranks chunks with ts_rank_cd over an OR-combined tsquery.
func (l *LexicalIndex) SearchLexical(ctx context.Context, tenantID, query string, k int, knowledgeBaseID string) ([]domain.LexicalHit, error) {
	tsQuery := lexical.ORQuery(query)
	if tsQuery == "" || k <= 0 {
		return []domain.LexicalHit{}, nil
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT c.document_id, c.chunk_index, c.content, ts_rank_cd(c.tsv, q) AS rank
FROM document_chunks c
JOIN documents d ON d.id = c.document_id,
	to_tsquery('simple', $2) q
WHERE d.tenant_id = $1
	AND c.tsv @@ q
	AND ($4 = '' OR d.knowledge_base_id = $4)
ORDER BY rank DESC, c.document_id, c.chunk_index
LIMIT $3
`, tenantID, tsQuery, k, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LexicalHit, 0, k)
	for rows.Next() {
		var hit domain.LexicalHit
		if err := rows.Scan(&hit.DocumentID, &hit.ChunkIndex, &hit.Text, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		hit.Score = domain.SafeScore(hit.Score, 0)
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical hits: %w", err)
	}
	return out, nil
}

// FindEntityCandidates widens the candidate set for fact extraction: a chunk
// qualifies on an adjacent-term phrase, on both terms of a capped pair, on the
// single term, or on trigram similarity to the whole name.
func (l *LexicalIndex) FindEntityCandidates(ctx context.Context, tenantID, entityName string, limit int, knowledgeBaseID string) ([]domain.ChunkText, error) {
	filter := lexical.BuildEntityFilter(entityName)
	if filter.Empty() || limit <= 0 {
		return []domain.ChunkText{}, nil
	}

	query, args := entityCandidateQuery(filter, tenantID, knowledgeBaseID, limit)
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entity candidates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChunkText, 0, limit)
	for rows.Next() {
		var c domain.ChunkText
		if err := rows.Scan(&c.DocumentID, &c.ChunkIndex, &c.Text); err != nil {
			return nil, fmt.Errorf("scan entity candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity candidates: %w", err)
	}
	return out, nil
}

func entityCandidateQuery(filter lexical.EntityFilter, tenantID, knowledgeBaseID string, limit int) (string, []any) {
	args := []any{tenantID, knowledgeBaseID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	like := func(s string) string {
		return "c.content ILIKE " + arg("%"+s+"%")
	}

	var phrases, pairs, conds []string
	for _, phrase := range filter.Phrases {
		phrases = append(phrases, like(phrase))
	}
	for _, pair := range filter.Pairs {
		pairs = append(pairs, "("+like(pair[0])+" AND "+like(pair[1])+")")
	}
	conds = append(conds, phrases...)
	conds = append(conds, pairs...)

	// strongest matches first so LIMIT keeps them
	tiers := []string{}
	if len(phrases) > 0 {
		tiers = append(tiers, "WHEN "+strings.Join(phrases, " OR ")+" THEN 4")
	}
	if len(pairs) > 0 {
		tiers = append(tiers, "WHEN "+strings.Join(pairs, " OR ")+" THEN 3")
	}
	if term, ok := filter.SingleTerm(); ok {
		single := like(term)
		conds = append(conds, single)
		tiers = append(tiers, "WHEN "+single+" THEN 2")
	}
	order := "c.document_id, c.chunk_index"
	if filter.Name != "" {
		similarity := "similarity(lower(c.content), " + arg(filter.Name) + ")"
		conds = append(conds, similarity+" > "+arg(filter.TrigramThreshold))
		order = similarity + " DESC, " + order
	}
	if len(tiers) > 0 {
		order = "CASE " + strings.Join(tiers, " ") + " ELSE 1 END DESC, " + order
	}

	query := `
SELECT c.document_id, c.chunk_index, c.content
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.tenant_id = $1
	AND ($2 = '' OR d.knowledge_base_id = $2)
	AND (` + strings.Join(conds, "\n\t\tOR ") + `)
ORDER BY ` + order + `
LIMIT ` + arg(limit)
	return query, args
}
