package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

func TestSearchVectorsFiltersByTenant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		var payload struct {
			Limit  int `json:"limit"`
			Filter struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Limit != 3 {
			t.Fatalf("expected limit 3, got %d", payload.Limit)
		}
		if len(payload.Filter.Must) != 1 || payload.Filter.Must[0].Key != "tenant_id" || payload.Filter.Must[0].Match.Value != "t1" {
			t.Fatalf("unexpected filter: %+v", payload.Filter)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.9,"payload":{"doc_id":"d1","chunk_index":2,"text":"orari sportello"}},
			{"score":0.5,"payload":{"chunk_index":1}},
			{"score":0.4,"payload":{"doc_id":"d2","chunk_index":"7"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	hits, err := client.SearchVectors(context.Background(), "t1", []float32{0.1, 0.2}, 3)
	if err != nil {
		t.Fatalf("SearchVectors() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].DocumentID != "d1" || hits[0].ChunkIndex != 2 || hits[0].Text != "orari sportello" {
		t.Fatalf("unexpected first hit: %+v", hits[0])
	}
	if d := hits[0].Distance; d < 0.099 || d > 0.101 {
		t.Fatalf("unexpected distance: %v", d)
	}
	if hits[1].ChunkIndex != 7 {
		t.Fatalf("expected string chunk index to parse, got %d", hits[1].ChunkIndex)
	}
}

func TestSearchVectorsIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection missing", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	_, err := client.SearchVectors(context.Background(), "t1", []float32{1}, 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "collection missing") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestSearchVectorsSkipsEmptyQuery(t *testing.T) {
	client := New("http://127.0.0.1:0", "chunks")
	hits, err := client.SearchVectors(context.Background(), "t1", nil, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected empty result, got %v %v", hits, err)
	}
	if _, err := client.SearchVectors(context.Background(), "", []float32{1}, 5); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
