package domain

import (
	"fmt"
	"strings"
)

type FactKind string

const (
	FactPhone    FactKind = "phone"
	FactEmail    FactKind = "email"
	FactAddress  FactKind = "address"
	FactSchedule FactKind = "schedule"
)

func ParseFactKind(raw string) (FactKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "phone", "telefono", "tel":
		return FactPhone, nil
	case "email", "e-mail", "mail":
		return FactEmail, nil
	case "address", "indirizzo":
		return FactAddress, nil
	case "schedule", "hours", "orari", "orario":
		return FactSchedule, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse fact kind", fmt.Errorf("unknown fact kind %q", raw))
	}
}

type ExtractedFact struct {
	Kind        FactKind `json:"kind"`
	Value       string   `json:"value"`
	DocumentID  string   `json:"document_id"`
	ChunkIndex  int      `json:"chunk_index"`
	Score       float64  `json:"score"`
	Excerpt     string   `json:"excerpt"`
	EntityLabel string   `json:"entity_label,omitempty"`
}

type FactRequest struct {
	Kind            FactKind `json:"kind"`
	TenantID        string   `json:"tenant_id"`
	EntityName      string   `json:"entity_name"`
	Limit           int      `json:"limit"`
	KnowledgeBaseID string   `json:"knowledge_base_id,omitempty"`
}

const DefaultFactLimit = 5
