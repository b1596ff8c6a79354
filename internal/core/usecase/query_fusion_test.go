package usecase

import (
	"math"
	"reflect"
	"testing"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

func TestFuseCandidatesRRFDeduplicatesByChunkKey(t *testing.T) {
	vector := []domain.VectorHit{
		{DocumentID: "doc-1", ChunkIndex: 0, Text: "a", Score: 0.9},
		{DocumentID: "doc-2", ChunkIndex: 0, Text: "b", Score: 0.8},
	}
	lexical := []domain.LexicalHit{
		{DocumentID: "doc-2", ChunkIndex: 0, Text: "b", Score: 1.0},
		{DocumentID: "doc-3", ChunkIndex: 1, Text: "c", Score: 0.7},
	}

	fused := fuseCandidatesRRF(vector, lexical, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(fused))
	}
	if fused[0].DocumentID != "doc-2" {
		t.Fatalf("expected doc-2 first after RRF fusion, got %s", fused[0].DocumentID)
	}
	want := 1.0/62 + 1.0/61
	if math.Abs(fused[0].FusedScore-want) > 1e-12 {
		t.Fatalf("expected fused score %v, got %v", want, fused[0].FusedScore)
	}
	if fused[0].VectorScore == nil || *fused[0].VectorScore != 0.8 || fused[0].LexicalRank != 1 {
		t.Fatalf("expected channel provenance to be kept, got %+v", fused[0])
	}
}

func TestFuseCandidatesRRFTieBreakStable(t *testing.T) {
	vector := []domain.VectorHit{{DocumentID: "doc-b", ChunkIndex: 0, Text: "b"}}
	lexical := []domain.LexicalHit{{DocumentID: "doc-a", ChunkIndex: 0, Text: "a"}}

	fused := fuseCandidatesRRF(vector, lexical, 1000)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused candidates, got %d", len(fused))
	}
	if fused[0].DocumentID != "doc-a" {
		t.Fatalf("expected tie-break by document id, got first=%s", fused[0].DocumentID)
	}
}

func TestFuseCandidatesRRFTieBreakByChunkIndex(t *testing.T) {
	vector := []domain.VectorHit{{DocumentID: "doc-a", ChunkIndex: 4}}
	lexical := []domain.LexicalHit{{DocumentID: "doc-a", ChunkIndex: 2}}

	fused := fuseCandidatesRRF(vector, lexical, 60)
	if fused[0].ChunkIndex != 2 || fused[1].ChunkIndex != 4 {
		t.Fatalf("expected chunk index tie-break, got %+v", fused)
	}
}

func TestFuseCandidatesRRFCommutativeAndDeterministic(t *testing.T) {
	vector := []domain.VectorHit{
		{DocumentID: "doc-1", ChunkIndex: 0},
		{DocumentID: "doc-2", ChunkIndex: 1},
		{DocumentID: "doc-3", ChunkIndex: 2},
	}
	lexical := []domain.LexicalHit{
		{DocumentID: "doc-3", ChunkIndex: 2},
		{DocumentID: "doc-1", ChunkIndex: 0},
		{DocumentID: "doc-4", ChunkIndex: 0},
	}
	swappedVector := make([]domain.VectorHit, len(lexical))
	for i, h := range lexical {
		swappedVector[i] = domain.VectorHit{DocumentID: h.DocumentID, ChunkIndex: h.ChunkIndex}
	}
	swappedLexical := make([]domain.LexicalHit, len(vector))
	for i, h := range vector {
		swappedLexical[i] = domain.LexicalHit{DocumentID: h.DocumentID, ChunkIndex: h.ChunkIndex}
	}

	first := fusedOrder(fuseCandidatesRRF(vector, lexical, 60))
	second := fusedOrder(fuseCandidatesRRF(vector, lexical, 60))
	swapped := fusedOrder(fuseCandidatesRRF(swappedVector, swappedLexical, 60))

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected deterministic order, got %v and %v", first, second)
	}
	if !reflect.DeepEqual(first, swapped) {
		t.Fatalf("expected channel order not to matter, got %v and %v", first, swapped)
	}
}

func TestFuseCandidatesRRFOneEmptyChannel(t *testing.T) {
	fused := fuseCandidatesRRF(nil, []domain.LexicalHit{{DocumentID: "doc-1"}, {DocumentID: "doc-2"}}, 60)
	if len(fused) != 2 || fused[0].DocumentID != "doc-1" {
		t.Fatalf("expected lexical order preserved, got %+v", fused)
	}
	if fused[0].VectorScore != nil {
		t.Fatalf("expected no vector score for lexical-only candidate")
	}
}

func fusedOrder(candidates []domain.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Key()
	}
	return out
}
