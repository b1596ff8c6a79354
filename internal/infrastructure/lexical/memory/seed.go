package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

// SeedDocument is one entry of a seed file: document metadata plus its chunks in order.
type SeedDocument struct {
	ID              string   `json:"id"`
	TenantID        string   `json:"tenant_id"`
	KnowledgeBaseID string   `json:"knowledge_base_id"`
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Chunks          []string `json:"chunks"`
}

func (i *Index) LoadSeedFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return i.LoadSeed(f)
}

// LoadSeed reads a JSON array of SeedDocument and returns how many were stored.
func (i *Index) LoadSeed(r io.Reader) (int, error) {
	var docs []SeedDocument
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "decode seed", err)
	}
	for n, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.TenantID) == "" {
			return n, domain.WrapError(domain.ErrInvalidInput, "load seed", fmt.Errorf("document %d: id and tenant_id are required", n))
		}
		i.Put(domain.DocumentMeta{
			ID:              doc.ID,
			TenantID:        doc.TenantID,
			KnowledgeBaseID: doc.KnowledgeBaseID,
			Title:           doc.Title,
			URL:             doc.URL,
		}, doc.Chunks)
	}
	return len(docs), nil
}
