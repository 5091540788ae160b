package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clausescan/clausescan/internal/ai"
	"github.com/clausescan/clausescan/internal/segment"
	"github.com/clausescan/clausescan/internal/store"
	"github.com/clausescan/clausescan/pkg/models"
)

// ErrNoContent is returned when a document yields no usable text after
// cleaning and segmentation.
var ErrNoContent = errors.New("document contains no extractable text")

// Extractor turns a raw uploaded file into per-page text.
type Extractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// PageSplitExtractor treats the input as plain text with form-feed page
// breaks. A file without form feeds is a single page.
type PageSplitExtractor struct{}

func (PageSplitExtractor) ExtractPages(data []byte) ([]string, error) {
	return strings.Split(string(data), "\f"), nil
}

// Result describes the outcome of ingesting one file.
type Result struct {
	Document   models.Document
	ChunkCount int
	Duplicate  bool
}

// Service ingests raw contract files: extract pages, segment into chunks,
// embed each chunk and persist everything.
type Service struct {
	Store     store.DocumentStore
	Client    ai.Client
	Extractor Extractor
	Options   segment.Options
	Workers   int
}

// New creates an ingestion service with the default plain-text extractor.
func New(s store.DocumentStore, client ai.Client, opt segment.Options, workers int) *Service {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8 // cap to avoid overwhelming the embedding API
		}
	}
	return &Service{
		Store:     s,
		Client:    client,
		Extractor: PageSplitExtractor{},
		Options:   opt,
		Workers:   workers,
	}
}

// hashContent returns the SHA-256 hash of the raw file as a hex string.
func hashContent(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Ingest processes one uploaded file. Re-uploading a byte-identical file is
// detected by content hash and returns the existing document untouched.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (Result, error) {
	start := time.Now()

	hash := hashContent(data)
	if existing, found, err := s.Store.GetDocumentByHash(ctx, hash); err != nil {
		return Result{}, fmt.Errorf("hash lookup: %w", err)
	} else if found {
		log.Info().
			Str("filename", filename).
			Str("document_id", existing.ID).
			Msg("duplicate upload, skipping")
		return Result{Document: existing, Duplicate: true}, nil
	}

	pageTexts, err := s.Extractor.ExtractPages(data)
	if err != nil {
		return Result{}, fmt.Errorf("extract pages: %w", err)
	}

	fullText, pages := segment.BuildPages(pageTexts)
	chunks := segment.Segment(fullText, pages, s.Options)
	if len(chunks) == 0 {
		return Result{}, ErrNoContent
	}

	doc := models.Document{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentHash: hash,
		PageCount:   len(pages),
		CharLength:  len(fullText),
	}

	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].DocumentID = doc.ID
	}

	s.embedAll(ctx, chunks)

	if err := s.Store.InsertDocument(ctx, doc, fullText); err != nil {
		return Result{}, fmt.Errorf("insert document: %w", err)
	}
	if err := s.Store.InsertChunks(ctx, chunks); err != nil {
		return Result{}, fmt.Errorf("insert chunks: %w", err)
	}

	log.Info().
		Str("filename", filename).
		Str("document_id", doc.ID).
		Int("pages", doc.PageCount).
		Int("chunks", len(chunks)).
		Dur("elapsed", time.Since(start)).
		Msg("document ingested")

	return Result{Document: doc, ChunkCount: len(chunks)}, nil
}

// embedAll fills chunk embeddings using a bounded worker pool. A failed
// embedding leaves that chunk's vector nil; the chunk still participates in
// lexical retrieval.
func (s *Service) embedAll(ctx context.Context, chunks []models.Chunk) {
	if s.Client == nil {
		return
	}

	workChan := make(chan int, s.Workers*2)

	var wg sync.WaitGroup
	for w := 0; w < s.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				vec, err := s.Client.Embed(chunks[i].Text)
				if err != nil {
					log.Warn().Err(err).
						Str("chunk_id", chunks[i].ID).
						Int("chunk_index", chunks[i].ChunkIndex).
						Msg("embedding failed, chunk stays lexical-only")
					continue
				}
				chunks[i].Embedding = vec
			}
		}()
	}

	for i := range chunks {
		select {
		case workChan <- i:
		case <-ctx.Done():
			close(workChan)
			wg.Wait()
			return
		}
	}
	close(workChan)
	wg.Wait()
}
