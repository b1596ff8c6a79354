package domain

// DocumentMeta is the tenant-scoped metadata attached to citations.
type DocumentMeta struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	KnowledgeBaseID string `json:"knowledge_base_id,omitempty"`
	Title           string `json:"title"`
	URL             string `json:"url,omitempty"`
}

// ChunkText is a stored chunk together with its position inside the document.
type ChunkText struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}
