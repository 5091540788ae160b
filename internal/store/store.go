package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/clausescan/clausescan/pkg/models"
)

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// DocumentStore defines the methods that the Store must implement.
type DocumentStore interface {
	Migrate(ctx context.Context, embedDim int) error
	GetDocumentByHash(ctx context.Context, contentHash string) (models.Document, bool, error)
	InsertDocument(ctx context.Context, d models.Document, fullText string) error
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	GetDocument(ctx context.Context, id string) (models.Document, bool, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)
	GetFullText(ctx context.Context, documentID string) (string, error)
	ListChunks(ctx context.Context) ([]models.Chunk, error)
	SearchSimilar(ctx context.Context, queryVec []float32, k int, documentIDs []string) ([]models.RetrievalResult, error)
	InsertFindings(ctx context.Context, findings []models.Finding) error
	LogQuery(ctx context.Context, question, strategy string, resultCount int, latency time.Duration) error
	Ping(ctx context.Context) error
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, embedDim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
  id            TEXT PRIMARY KEY,
  filename      TEXT NOT NULL,
  content_hash  TEXT NOT NULL UNIQUE,
  page_count    INT NOT NULL,
  char_length   INT NOT NULL,
  full_text     TEXT NOT NULL,
  created_at    TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
  id            TEXT PRIMARY KEY,
  document_id   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  chunk_index   INT NOT NULL,
  page_number   INT NOT NULL,
  char_start    INT NOT NULL,
  char_end      INT NOT NULL,
  text          TEXT NOT NULL,
  embedding     vector(%d),
  created_at    TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS chunks_doc_index_uidx
  ON chunks (document_id, chunk_index);

CREATE INDEX IF NOT EXISTS chunks_document_idx
  ON chunks (document_id);

CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

CREATE TABLE IF NOT EXISTS findings (
  id               TEXT PRIMARY KEY,
  document_id      TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  risk_type        TEXT NOT NULL,
  severity         TEXT NOT NULL,
  title            TEXT NOT NULL,
  description      TEXT,
  evidence_text    TEXT,
  page_number      INT,
  char_start       INT,
  char_end         INT,
  detection_method TEXT NOT NULL,
  confidence       DOUBLE PRECISION NOT NULL,
  created_at       TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS findings_document_idx
  ON findings (document_id);

CREATE TABLE IF NOT EXISTS query_logs (
  id           BIGSERIAL PRIMARY KEY,
  question     TEXT NOT NULL,
  strategy     TEXT NOT NULL,
  result_count INT NOT NULL,
  latency_ms   DOUBLE PRECISION NOT NULL,
  created_at   TIMESTAMP WITH TIME ZONE DEFAULT now()
);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, embedDim))
	return err
}

// GetDocumentByHash looks up a document by its content hash so repeated
// uploads of the same file are detected before re-processing.
func (s *Store) GetDocumentByHash(ctx context.Context, contentHash string) (models.Document, bool, error) {
	const q = `
      SELECT id, filename, content_hash, page_count, char_length, created_at
      FROM documents
      WHERE content_hash = $1
      LIMIT 1`
	var d models.Document
	err := s.pool.QueryRow(ctx, q, contentHash).
		Scan(&d.ID, &d.Filename, &d.ContentHash, &d.PageCount, &d.CharLength, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Document{}, false, nil
		}
		return models.Document{}, false, err
	}
	return d, true, nil
}

// InsertDocument inserts a document row along with its full text.
func (s *Store) InsertDocument(ctx context.Context, d models.Document, fullText string) error {
	const q = `
		INSERT INTO documents (id, filename, content_hash, page_count, char_length, full_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := s.pool.Exec(ctx, q, d.ID, d.Filename, d.ContentHash, d.PageCount, d.CharLength, fullText)
	return err
}

// InsertChunks inserts all chunks of a document in one transaction so a
// partially ingested document never becomes visible.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO chunks (id, document_id, chunk_index, page_number, char_start, char_end, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`

	for _, c := range chunks {
		var ev any
		if c.Embedding != nil {
			ev = pgvector.NewVector(c.Embedding)
		} else {
			ev = (*pgvector.Vector)(nil)
		}
		if _, err := tx.Exec(ctx, q,
			c.ID, c.DocumentID, c.ChunkIndex, c.PageNumber, c.CharStart, c.CharEnd, c.Text, ev,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (models.Document, bool, error) {
	const q = `
      SELECT id, filename, content_hash, page_count, char_length, created_at
      FROM documents
      WHERE id = $1
      LIMIT 1`
	var d models.Document
	err := s.pool.QueryRow(ctx, q, id).
		Scan(&d.ID, &d.Filename, &d.ContentHash, &d.PageCount, &d.CharLength, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Document{}, false, nil
		}
		return models.Document{}, false, err
	}
	return d, true, nil
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, content_hash, page_count, char_length, created_at
		FROM documents
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.ContentHash, &d.PageCount, &d.CharLength, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; chunks and findings cascade. Returns
// false when no such document exists.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetFullText returns the document's full concatenated text. Offsets in
// findings and chunks index into this exact string.
func (s *Store) GetFullText(ctx context.Context, documentID string) (string, error) {
	var text string
	err := s.pool.QueryRow(ctx, `SELECT full_text FROM documents WHERE id = $1`, documentID).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return text, nil
}

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ListChunks returns every chunk without embeddings, ordered by document and
// position. Used to warm the in-memory lexical index at startup.
func (s *Store) ListChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, page_number, char_start, char_end, text, created_at
		FROM chunks
		ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.PageNumber, &c.CharStart, &c.CharEnd, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SearchSimilar returns the k chunks nearest to the query vector by cosine
// distance. Chunks without embeddings are skipped; ties break on chunk ID so
// result order is deterministic.
func (s *Store) SearchSimilar(ctx context.Context, queryVec []float32, k int, documentIDs []string) ([]models.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	qv := pgvector.NewVector(queryVec)

	q := `
		SELECT id, document_id, chunk_index, page_number, char_start, char_end, text, created_at,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL`
	args := []any{qv}
	if len(documentIDs) > 0 {
		q += ` AND document_id = ANY($2)`
		args = append(args, documentIDs)
	}
	q += fmt.Sprintf(`
		ORDER BY embedding <=> $1, id ASC
		LIMIT %d`, k)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RetrievalResult
	for rows.Next() {
		var c models.Chunk
		var score float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.PageNumber, &c.CharStart, &c.CharEnd, &c.Text, &c.CreatedAt, &score); err != nil {
			return nil, err
		}
		out = append(out, models.RetrievalResult{
			Chunk: c,
			Score: score,
			Rank:  len(out) + 1,
		})
	}
	return out, rows.Err()
}

// InsertFindings persists the findings of an audit run in one transaction.
func (s *Store) InsertFindings(ctx context.Context, findings []models.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO findings (
			id, document_id, risk_type, severity, title, description,
			evidence_text, page_number, char_start, char_end,
			detection_method, confidence, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())`

	for _, f := range findings {
		if _, err := tx.Exec(ctx, q,
			f.ID, f.DocumentID, f.RiskType, string(f.Severity), f.Title, f.Description,
			f.EvidenceText, f.PageNumber, f.CharStart, f.CharEnd,
			f.DetectionMethod, f.Confidence,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// LogQuery records a question for usage metrics.
func (s *Store) LogQuery(ctx context.Context, question, strategy string, resultCount int, latency time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_logs (question, strategy, result_count, latency_ms)
		VALUES ($1, $2, $3, $4)`,
		question, strategy, resultCount, float64(latency.Microseconds())/1000.0)
	return err
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
