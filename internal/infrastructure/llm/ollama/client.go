package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/httpjson"
)

type Client struct {
	http       *httpjson.Client
	chatModel  string
	embedModel string
}

func New(baseURL, chatModel, embedModel string, opts ...httpjson.Option) *Client {
	return &Client{
		http:       httpjson.New("ollama", baseURL, opts...),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.http.PostJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "ollama embed",
			fmt.Errorf("got %d embeddings for %d inputs", len(response.Embeddings), len(texts)))
	}
	return response.Embeddings, nil
}

// ChatCompleter talks to the OpenAI-compatible chat endpoint.
type ChatCompleter struct {
	client *Client
}

func NewChatCompleter(client *Client) *ChatCompleter {
	return &ChatCompleter{client: client}
}

func (c *ChatCompleter) ChatComplete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama chat", fmt.Errorf("messages are required"))
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = c.client.chatModel
	}

	var response domain.ChatResponse
	if err := c.client.http.PostJSON(ctx, "/v1/chat/completions", req, &response, "chat"); err != nil {
		return nil, err
	}
	return &response, nil
}
