package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/clausescan/clausescan/internal/ai"
	"github.com/clausescan/clausescan/internal/answer"
	"github.com/clausescan/clausescan/internal/audit"
	"github.com/clausescan/clausescan/internal/config"
	"github.com/clausescan/clausescan/internal/extract"
	"github.com/clausescan/clausescan/internal/ingest"
	"github.com/clausescan/clausescan/internal/retrieval"
	"github.com/clausescan/clausescan/internal/store"
	"github.com/clausescan/clausescan/pkg/models"
)

// counters for /metrics
type metrics struct {
	started   time.Time
	requests  atomic.Int64
	ingests   atomic.Int64
	questions atomic.Int64
	audits    atomic.Int64
	extracts  atomic.Int64
	errors    atomic.Int64
}

type askRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	Strategy    string   `json:"strategy,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

type auditRequest struct {
	DocumentID string `json:"document_id"`
}

type auditResponse struct {
	DocumentID     string           `json:"document_id"`
	Findings       []models.Finding `json:"findings"`
	SeverityCounts map[string]int   `json:"severity_counts"`
}

type extractRequest struct {
	DocumentID string `json:"document_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("clausescan-api", pflag.ExitOnError)
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().
		Str("provider", cfg.Provider).
		Str("retriever", cfg.Retriever).
		Str("log_level", cfg.LogLevel).
		Msg("starting clausescan api")

	clientConfig, err := clientConfigFor(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	c, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}

	dim := c.Dim()
	logger.Info().Int("embedding_dim", dim).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	if err := st.Migrate(ctx, dim); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	sparse := retrieval.NewSparseRetriever()
	refitSparse := func(ctx context.Context) {
		chunks, err := st.ListChunks(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("lexical index refit failed")
			return
		}
		sparse.Fit(chunks)
		logger.Info().Int("chunks", len(chunks)).Msg("lexical index fitted")
	}
	refitSparse(ctx)

	dense := &retrieval.DenseRetriever{Embedder: c, Store: st}

	var primary, fallback retrieval.Retriever
	if cfg.Retriever == "sparse" {
		primary, fallback = sparse, dense
	} else {
		primary, fallback = dense, sparse
	}

	askSvc := &answer.Service{Retriever: primary, Fallback: fallback, Client: c, TopK: cfg.TopK}
	ingestSvc := ingest.New(st, c, cfg.Chunking(), cfg.Workers)
	auditEngine := audit.NewEngine()
	extractSvc := &extract.Service{Client: c}

	m := &metrics{started: time.Now()}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"uptime_seconds":  int64(time.Since(m.started).Seconds()),
			"requests_total":  m.requests.Load(),
			"ingests_total":   m.ingests.Load(),
			"questions_total": m.questions.Load(),
			"audits_total":    m.audits.Load(),
			"extracts_total":  m.extracts.Load(),
			"errors_total":    m.errors.Load(),
		})
	})

	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxFileSizeBytes()*int64(cfg.MaxFiles))
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}
		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			files = r.MultipartForm.File["file"]
		}
		if len(files) == 0 {
			writeError(w, http.StatusBadRequest, "no files uploaded")
			return
		}
		if len(files) > cfg.MaxFiles {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("too many files: %d (max %d)", len(files), cfg.MaxFiles))
			return
		}

		type ingested struct {
			DocumentID string `json:"document_id"`
			Filename   string `json:"filename"`
			Pages      int    `json:"pages"`
			Chunks     int    `json:"chunks"`
			Duplicate  bool   `json:"duplicate,omitempty"`
		}
		var out []ingested
		for _, fh := range files {
			if fh.Size > cfg.MaxFileSizeBytes() {
				writeError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("%s exceeds the %dMB limit", fh.Filename, cfg.MaxFileSizeMB))
				return
			}
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "open upload: "+err.Error())
				return
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
				return
			}

			res, err := ingestSvc.Ingest(r.Context(), fh.Filename, data)
			if err != nil {
				m.errors.Add(1)
				if errors.Is(err, ingest.ErrNoContent) {
					writeError(w, http.StatusUnprocessableEntity, fh.Filename+": no extractable text")
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			out = append(out, ingested{
				DocumentID: res.Document.ID,
				Filename:   res.Document.Filename,
				Pages:      res.Document.PageCount,
				Chunks:     res.ChunkCount,
				Duplicate:  res.Duplicate,
			})
			m.ingests.Add(1)
		}

		refitSparse(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"documents": out})
	})

	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		svc := askSvc
		strategy := cfg.Retriever
		switch req.Strategy {
		case "":
		case "dense":
			svc = &answer.Service{Retriever: dense, Fallback: sparse, Client: c, TopK: cfg.TopK}
			strategy = "dense"
		case "sparse":
			svc = &answer.Service{Retriever: sparse, Fallback: dense, Client: c, TopK: cfg.TopK}
			strategy = "sparse"
		default:
			writeError(w, http.StatusBadRequest, "strategy must be dense or sparse")
			return
		}
		if req.TopK > 0 {
			copied := *svc
			copied.TopK = req.TopK
			svc = &copied
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := svc.Ask(ctx, req.Question, req.DocumentIDs)
		if err != nil {
			m.errors.Add(1)
			if errors.Is(err, answer.ErrNoResults) {
				writeError(w, http.StatusNotFound, "no relevant passages found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		m.questions.Add(1)
		if err := st.LogQuery(ctx, req.Question, strategy, len(resp.Citations), time.Since(start)); err != nil {
			logger.Warn().Err(err).Msg("query log insert failed")
		}
		hlog.FromRequest(r).Info().
			Str("path", "/ask").
			Str("strategy", strategy).
			Int("citations", len(resp.Citations)).
			Dur("dur", time.Since(start)).
			Msg("served")
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/audit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var req auditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.DocumentID) == "" {
			writeError(w, http.StatusBadRequest, "document_id is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		fullText, err := st.GetFullText(ctx, req.DocumentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "document not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		findings := auditEngine.Audit(fullText)

		chunks, err := st.ListChunks(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("page resolution unavailable")
			chunks = nil
		}
		var docChunks []models.Chunk
		for _, ch := range chunks {
			if ch.DocumentID == req.DocumentID {
				docChunks = append(docChunks, ch)
			}
		}

		counts := map[string]int{}
		for i := range findings {
			findings[i].ID = uuid.NewString()
			findings[i].DocumentID = req.DocumentID
			if findings[i].CharStart != nil {
				page := pageForOffset(*findings[i].CharStart, docChunks)
				findings[i].PageNumber = &page
			}
			counts[string(findings[i].Severity)]++
		}

		if err := st.InsertFindings(ctx, findings); err != nil {
			logger.Warn().Err(err).Msg("findings persist failed")
		}
		m.audits.Add(1)

		if findings == nil {
			findings = []models.Finding{}
		}
		writeJSON(w, http.StatusOK, auditResponse{
			DocumentID:     req.DocumentID,
			Findings:       findings,
			SeverityCounts: counts,
		})
	})

	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.DocumentID) == "" {
			writeError(w, http.StatusBadRequest, "document_id is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		fullText, err := st.GetFullText(ctx, req.DocumentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "document not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		res, err := extractSvc.Extract(ctx, fullText)
		if err != nil {
			m.errors.Add(1)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		m.extracts.Add(1)
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "GET only")
			return
		}
		docs, err := st.ListDocuments(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if docs == nil {
			docs = []models.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	})

	mux.HandleFunc("/documents/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/documents/")
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			doc, found, err := st.GetDocument(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !found {
				writeError(w, http.StatusNotFound, "document not found")
				return
			}
			writeJSON(w, http.StatusOK, doc)
		case http.MethodDelete:
			deleted, err := st.DeleteDocument(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !deleted {
				writeError(w, http.StatusNotFound, "document not found")
				return
			}
			refitSparse(r.Context())
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "GET or DELETE only")
		}
	})

	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requests.Add(1)
		mux.ServeHTTP(w, r)
	})

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(counted),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}

// clientConfigFor maps the loaded configuration onto a provider client config.
func clientConfigFor(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Provider:    ai.ProviderOpenAI,
		}, nil
	case "vertexai", "google":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Location:    cfg.Location,
			Provider:    ai.ProviderVertexAI,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// pageForOffset resolves a character offset to the page of the chunk that
// contains it. Chunks overlap, so the first match wins.
func pageForOffset(offset int, chunks []models.Chunk) int {
	for _, ch := range chunks {
		if ch.CharStart <= offset && offset < ch.CharEnd {
			return ch.PageNumber
		}
	}
	return 1
}
