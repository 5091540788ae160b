package models

import "time"

// Severity is the ordered risk level assigned to a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of the severity, low < medium < high < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Page records the character range a single extracted page occupies within
// the document's concatenated text.
type Page struct {
	Number    int `json:"number"`
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
}

type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	PageCount   int       `json:"page_count"`
	CharLength  int       `json:"char_length"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is a bounded, page-attributed text window used as the unit of
// retrieval. Embedding is nil when embedding failed or was skipped; such
// chunks stay eligible for sparse retrieval only.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	PageNumber int       `json:"page_number"`
	CharStart  int       `json:"char_start"`
	CharEnd    int       `json:"char_end"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Finding is one audit rule's detected risk instance. CharStart/CharEnd are
// nil for document-level absences that carry no located evidence span.
type Finding struct {
	ID              string    `json:"id"`
	DocumentID      string    `json:"document_id"`
	RiskType        string    `json:"risk_type"`
	Severity        Severity  `json:"severity"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	EvidenceText    string    `json:"evidence_text,omitempty"`
	PageNumber      *int      `json:"page,omitempty"`
	CharStart       *int      `json:"char_start,omitempty"`
	CharEnd         *int      `json:"char_end,omitempty"`
	DetectionMethod string    `json:"detection_method"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"created_at"`
}

// RetrievalResult is ephemeral: produced by a retriever, consumed by the
// citation/answer stage, never persisted.
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type Citation struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	Text       string `json:"text"`
}
