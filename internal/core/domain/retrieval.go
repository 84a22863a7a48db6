package domain

// Chunk is a piece of a document's analysis stored in the vector index.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Vector     []float32
}

type VectorFilter struct {
	DocumentID string
}

type RetrievedChunk struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"ocrId"`
	ChunkIndex int     `json:"chunkIndex"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type Source struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// FileRef points at a file held by the generation provider.
type FileRef struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}
