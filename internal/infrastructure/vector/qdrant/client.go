package qdrant

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/httpjson"
)

const (
	payloadTenantID   = "tenant_id"
	payloadDocumentID = "doc_id"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
)

type Client struct {
	http       *httpjson.Client
	collection string
}

func New(baseURL, collection string, opts ...httpjson.Option) *Client {
	return &Client{
		http:       httpjson.New("qdrant", baseURL, opts...),
		collection: collection,
	}
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// SearchVectors returns the k nearest chunks of one tenant, best first.
// Points are expected to be stored with cosine distance.
func (c *Client) SearchVectors(ctx context.Context, tenantID string, queryVector []float32, k int) ([]domain.VectorHit, error) {
	if len(queryVector) == 0 || k <= 0 {
		return []domain.VectorHit{}, nil
	}
	if tenantID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", fmt.Errorf("tenant id is required"))
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   payloadTenantID,
					"match": map[string]any{"value": tenantID},
				},
			},
		},
	}

	var resp searchResponse
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.http.PostJSON(ctx, path, reqBody, &resp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		docID := getStringPayload(r.Payload, payloadDocumentID)
		if docID == "" {
			continue
		}
		score := domain.SafeScore(r.Score, 0)
		out = append(out, domain.VectorHit{
			DocumentID: docID,
			ChunkIndex: getIntPayload(r.Payload, payloadChunkIndex),
			Text:       getStringPayload(r.Payload, payloadText),
			Score:      score,
			Distance:   1 - score,
		})
	}
	return out, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
