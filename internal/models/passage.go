package models

// Passage is one ranked search hit from the knowledge collection.
type Passage struct {
	SourceID   string   // vector store file id
	SourceName string   // uploaded file name
	Score      float64  // relevance, as returned by the index
	Chunks     []string // text chunks, in index order
}

// Source is the citation surfaced to the client next to an answer.
type Source struct {
	FileID   string  `json:"file_id"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// SourcesOf maps passages to citations, keeping their order.
func SourcesOf(passages []Passage) []Source {
	sources := make([]Source, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, Source{FileID: p.SourceID, Filename: p.SourceName, Score: p.Score})
	}
	return sources
}
