package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

type entityCandidatesFake struct {
	chunks []domain.ChunkText
	err    error
	limit  int
	kbID   string
}

func (f *entityCandidatesFake) FindEntityCandidates(_ context.Context, _ string, _ string, limit int, kbID string) ([]domain.ChunkText, error) {
	f.limit = limit
	f.kbID = kbID
	return f.chunks, f.err
}

func TestFactUseCaseExtractsPhone(t *testing.T) {
	source := &entityCandidatesFake{chunks: []domain.ChunkText{
		{DocumentID: "doc1", ChunkIndex: 4, Text: "Farmacia Centrale - tel. 0577 123456 - P.IVA 12345678901"},
	}}
	observer := &observerFake{}
	uc := NewFactUseCase(source, observer, nil, 0)

	facts, err := uc.ExtractFacts(context.Background(), domain.FactRequest{
		Kind:            domain.FactPhone,
		TenantID:        "tenant-a",
		EntityName:      "Farmacia Centrale",
		Limit:           3,
		KnowledgeBaseID: "kb-9",
	})
	if err != nil {
		t.Fatalf("ExtractFacts() error = %v", err)
	}
	if len(facts) != 1 || facts[0].Value != "0577123456" {
		t.Fatalf("expected one phone fact, got %+v", facts)
	}
	if facts[0].DocumentID != "doc1" || facts[0].ChunkIndex != 4 {
		t.Fatalf("expected provenance to be kept, got %+v", facts[0])
	}
	if source.kbID != "kb-9" || source.limit != minFactCandidates {
		t.Fatalf("expected widened candidate request, got limit=%d kb=%q", source.limit, source.kbID)
	}
	if event, ok := observer.stage(domain.StageFacts); !ok || event.Count != 1 {
		t.Fatalf("expected facts stage observed, got %+v", event)
	}
}

func TestFactUseCaseCandidateFailureYieldsNoFacts(t *testing.T) {
	uc := NewFactUseCase(&entityCandidatesFake{err: errors.New("db down")}, nil, nil, 0)
	facts, err := uc.ExtractFacts(context.Background(), domain.FactRequest{
		Kind: domain.FactEmail, TenantID: "tenant-a", EntityName: "Comune",
	})
	if err != nil {
		t.Fatalf("ExtractFacts() error = %v", err)
	}
	if facts == nil || len(facts) != 0 {
		t.Fatalf("expected empty facts, got %v", facts)
	}
}

func TestFactUseCaseValidatesInput(t *testing.T) {
	uc := NewFactUseCase(&entityCandidatesFake{}, nil, nil, 0)
	cases := []domain.FactRequest{
		{Kind: domain.FactPhone, EntityName: "x"},
		{Kind: domain.FactPhone, TenantID: "t"},
		{Kind: domain.FactKind("fax"), TenantID: "t", EntityName: "x"},
	}
	for _, req := range cases {
		if _, err := uc.ExtractFacts(context.Background(), req); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", req, err)
		}
	}
}
