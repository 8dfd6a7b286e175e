package domain

// Chunk is one immutable unit of indexed source text. Chunks are created at
// index-build time and retired only by a full rebuild.
type Chunk struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	Article     string `json:"article"`
	Law         string `json:"law"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
}
