// Package knowledgebase uploads a folder of cleaned Markdown documents into a
// new OpenAI vector store that the assistant searches.
package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Upload tuning.
const (
	DefaultConcurrency  = 4
	DefaultPollInterval = 2 * time.Second
	filePurpose         = "assistants"
)

// ErrNoDocuments is returned when the folder holds no .md file.
var ErrNoDocuments = errors.New("no .md files found")

// ErrIndexingFailed is returned when the file batch ends failed or cancelled.
var ErrIndexingFailed = errors.New("vector store indexing failed")

// Result identifies what Upload created.
type Result struct {
	VectorStoreID string
	BatchID       string
	Files         int
}

// Uploader creates vector stores from local documents.
type Uploader struct {
	client       *openai.Client
	limiter      *rate.Limiter
	concurrency  int
	pollInterval time.Duration
	log          *zap.Logger
}

// NewUploader returns an uploader with the default concurrency, a pace of
// four uploads per second and a 2s poll interval.
func NewUploader(client *openai.Client, log *zap.Logger) *Uploader {
	return &Uploader{
		client:       client,
		limiter:      rate.NewLimiter(rate.Every(250*time.Millisecond), DefaultConcurrency),
		concurrency:  DefaultConcurrency,
		pollInterval: DefaultPollInterval,
		log:          log.With(zap.String("component", "knowledgebase")),
	}
}

// DefaultName is the vector store name used when none is configured.
func DefaultName(now time.Time) string {
	return fmt.Sprintf("BAI knowledgebase (%s)", now.UTC().Format(time.RFC3339))
}

// ListMarkdown walks dir and returns its .md files in lexical order.
func ListMarkdown(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("folder not found: %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a folder: %s", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in: %s", ErrNoDocuments, dir)
	}
	return files, nil
}

// Upload sends every Markdown file of dir, creates the vector store name
// and waits until the batch is indexed.
func (u *Uploader) Upload(ctx context.Context, dir, name string) (Result, error) {
	files, err := ListMarkdown(dir)
	if err != nil {
		return Result{}, err
	}

	u.log.Info("uploading files", zap.Int("files", len(files)), zap.String("dir", dir))
	ids, err := u.uploadFiles(ctx, files)
	if err != nil {
		return Result{}, err
	}

	u.log.Info("creating vector store", zap.String("name", name))
	store, err := u.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return Result{}, fmt.Errorf("create vector store: %w", err)
	}

	u.log.Info("indexing files", zap.String("vector_store_id", store.ID))
	batch, err := u.client.CreateVectorStoreFileBatch(ctx, store.ID, openai.VectorStoreFileBatchRequest{FileIDs: ids})
	if err != nil {
		return Result{}, fmt.Errorf("create file batch: %w", err)
	}

	res := Result{VectorStoreID: store.ID, BatchID: batch.ID, Files: len(ids)}
	if err := u.wait(ctx, store.ID, batch.ID, batch.Status); err != nil {
		return res, err
	}
	return res, nil
}

func (u *Uploader) uploadFiles(ctx context.Context, files []string) ([]string, error) {
	ids := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	for i, path := range files {
		g.Go(func() error {
			if err := u.limiter.Wait(gctx); err != nil {
				return err
			}
			f, err := u.client.CreateFile(gctx, openai.FileRequest{
				FileName: filepath.Base(path),
				FilePath: path,
				Purpose:  filePurpose,
			})
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			ids[i] = f.ID
			u.log.Debug("file uploaded", zap.String("path", path), zap.String("file_id", f.ID))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (u *Uploader) wait(ctx context.Context, storeID, batchID, status string) error {
	ticker := time.NewTicker(u.pollInterval)
	defer ticker.Stop()

	for {
		switch status {
		case "completed":
			return nil
		case "failed", "cancelled":
			return fmt.Errorf("%w: batch %s is %s", ErrIndexingFailed, batchID, status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		batch, err := u.client.RetrieveVectorStoreFileBatch(ctx, storeID, batchID)
		if err != nil {
			return fmt.Errorf("retrieve file batch: %w", err)
		}
		status = batch.Status
		u.log.Debug("indexing", zap.String("status", status))
	}
}
