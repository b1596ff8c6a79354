package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

func TestLoadSeed(t *testing.T) {
	idx := NewIndex()
	n, err := idx.LoadSeed(strings.NewReader(`[
		{"id":"d1","tenant_id":"t1","title":"Guida","chunks":["Sportello anagrafe","Orari: lun-ven 9-12"]}
	]`))
	if err != nil || n != 1 {
		t.Fatalf("LoadSeed() = %d, %v", n, err)
	}
	text, ok, _ := idx.GetChunkText(context.Background(), "d1", 1, 0)
	if !ok || text != "Orari: lun-ven 9-12" {
		t.Fatalf("unexpected chunk %q", text)
	}
}

func TestLoadSeedRejectsMissingTenant(t *testing.T) {
	_, err := NewIndex().LoadSeed(strings.NewReader(`[{"id":"d1","chunks":["x"]}]`))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
