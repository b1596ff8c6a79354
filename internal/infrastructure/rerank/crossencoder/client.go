package crossencoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/httpjson"
)

const rerankPath = "/v1/rerank"

// Client calls a hosted rerank endpoint. It is considered configured only when
// both an endpoint and an API key are present.
type Client struct {
	http   *httpjson.Client
	model  string
	apiKey string
}

func New(endpoint, apiKey, model string, opts ...httpjson.Option) *Client {
	opts = append(opts, httpjson.WithBearerToken(apiKey))
	return &Client{
		http:   httpjson.New("crossencoder", endpoint, opts...),
		model:  model,
		apiKey: strings.TrimSpace(apiKey),
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.http.BaseURL() != "" && c.apiKey != ""
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []domain.RerankScore `json:"results"`
}

func (c *Client) RerankExternal(ctx context.Context, query string, documents []string, topN int) ([]domain.RerankScore, error) {
	if !c.Configured() {
		return nil, domain.WrapError(domain.ErrNotConfigured, "crossencoder rerank", fmt.Errorf("endpoint or api key missing"))
	}
	if len(documents) == 0 {
		return []domain.RerankScore{}, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	var resp rerankResponse
	req := rerankRequest{Model: c.model, Query: query, Documents: documents, TopN: topN}
	if err := c.http.PostJSON(ctx, rerankPath, req, &resp, "rerank"); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "crossencoder rerank", fmt.Errorf("missing results"))
	}
	return resp.Results, nil
}
