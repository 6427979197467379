package service

import (
	"context"
	"net/http"

	oai "github.com/openai/openai-go"
	"go.uber.org/zap"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// Retrieval defaults.
const (
	DefaultMaxResults     = 4
	DefaultScoreThreshold = 0.15
)

// Retriever finds ranked knowledge-base passages for a query.
type Retriever interface {
	// Search returns hits above scoreThreshold in index rank order. Zero hits
	// is not an error.
	Search(ctx context.Context, query string, maxResults int, scoreThreshold float64) ([]models.Passage, error)
}

// FileNamer resolves a file id to its display name.
type FileNamer interface {
	FileName(ctx context.Context, fileID string) (string, error)
}

// VectorStoreRetriever queries one OpenAI vector store through its search
// endpoint.
type VectorStoreRetriever struct {
	stores        oai.VectorStoreService
	vectorStoreID string
	names         FileNamer // optional
	log           *zap.Logger
}

// NewVectorStoreRetriever wires the search client. names may be nil.
func NewVectorStoreRetriever(httpClient *http.Client, baseURL, apiKey, vectorStoreID string, names FileNamer, log *zap.Logger) *VectorStoreRetriever {
	client := oai.NewClient(sdkOptions(httpClient, baseURL, apiKey)...)
	return &VectorStoreRetriever{
		stores:        client.VectorStores,
		vectorStoreID: vectorStoreID,
		names:         names,
		log:           log.With(zap.String("component", "retriever")),
	}
}

// Search calls POST /vector_stores/{id}/search.
func (r *VectorStoreRetriever) Search(ctx context.Context, query string, maxResults int, scoreThreshold float64) ([]models.Passage, error) {
	page, err := r.stores.Search(ctx, r.vectorStoreID, oai.VectorStoreSearchParams{
		Query:         oai.VectorStoreSearchParamsQueryUnion{OfString: oai.String(query)},
		MaxNumResults: oai.Int(int64(maxResults)),
		RewriteQuery:  oai.Bool(false),
		RankingOptions: oai.VectorStoreSearchParamsRankingOptions{
			ScoreThreshold: oai.Float(scoreThreshold),
		},
	})
	if err != nil {
		return nil, classify(ctx, "retrieval", sdkError(err))
	}

	passages := make([]models.Passage, 0, len(page.Data))
	for _, hit := range page.Data {
		// Threshold is enforced locally too.
		if hit.Score < scoreThreshold {
			continue
		}
		p := models.Passage{SourceID: hit.FileID, SourceName: hit.Filename, Score: hit.Score}
		for _, c := range hit.Content {
			if c.Type == "" || c.Type == "text" {
				p.Chunks = append(p.Chunks, c.Text)
			}
		}
		if p.SourceName == "" {
			p.SourceName = r.resolveName(ctx, hit.FileID)
		}
		passages = append(passages, p)
	}
	r.log.Debug("vector store search", zap.Int("hits", len(page.Data)), zap.Int("kept", len(passages)))
	return passages, nil
}

func (r *VectorStoreRetriever) resolveName(ctx context.Context, fileID string) string {
	if r.names == nil || fileID == "" {
		return fileID
	}
	name, err := r.names.FileName(ctx, fileID)
	if err != nil || name == "" {
		r.log.Debug("file name lookup failed", zap.String("file_id", fileID), zap.Error(err))
		return fileID
	}
	return name
}

// DedupeBySource keeps the first passage of each source, in order, and caps
// the result at limit.
func DedupeBySource(passages []models.Passage, limit int) []models.Passage {
	seen := make(map[string]struct{}, len(passages))
	out := make([]models.Passage, 0, min(len(passages), max(limit, 0)))
	for _, p := range passages {
		if len(out) >= limit {
			break
		}
		if _, dup := seen[p.SourceID]; dup {
			continue
		}
		seen[p.SourceID] = struct{}{}
		out = append(out, p)
	}
	return out
}
