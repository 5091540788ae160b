package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type OpenAIClient struct {
	config *ClientConfig
	http   *http.Client
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	// Set default models if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.AnswerModel == "" {
		config.AnswerModel = "gpt-4o-mini"
	}
	if config.Dim == 0 {
		// Set default dimensions based on the embedding model
		switch config.EmbedModel {
		case "text-embedding-3-small":
			config.Dim = 1536
		case "text-embedding-3-large":
			config.Dim = 3072
		case "text-embedding-ada-002":
			config.Dim = 1536
		default:
			config.Dim = 1536
		}
	}

	// Create HTTP client with optional TLS skip verification
	transport := &http.Transport{}

	// Corporate proxies sometimes require skipping verification
	if skipTLS, _ := strconv.ParseBool(os.Getenv("CLAUSESCAN_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	return &OpenAIClient{
		config: config,
		http:   httpClient,
	}
}

// Embed implements the embedding functionality
func (c *OpenAIClient) Embed(text string) ([]float32, error) {
	if c.config.APIKey == "" {
		return nil, errors.New("PROVIDER_API_KEY unset")
	}

	payload := map[string]string{
		"input": text,
		"model": c.config.EmbedModel,
	}

	b, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost,
		"https://api.openai.com/v1/embeddings", bytes.NewReader(b))

	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("openai embedding non-200")
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errors.New("no embedding")
	}
	return out.Data[0].Embedding, nil
}

// Answer synthesizes an answer to the question from the retrieved contract
// excerpts.
func (c *OpenAIClient) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	sys := "You are a legal document analyst. Answer questions accurately based on the provided contract text. Include specific details and quote relevant passages when possible."
	user := "Answer the following question based on the provided contract excerpts. If the answer cannot be found in the context, say \"I cannot find this information in the provided contracts.\"\n\nContext:\n" +
		truncate(strings.Join(contexts, "\n\n"), 24000) +
		"\n\nQuestion: " + question + "\n\nAnswer:"

	return c.chat(ctx, []map[string]string{
		{"role": "system", "content": sys},
		{"role": "user", "content": user},
	}, 0.2, 1000, false)
}

// Extract asks the model for the contract's structured fields as a JSON
// object and returns the raw JSON text.
func (c *OpenAIClient) Extract(ctx context.Context, contractText string) (string, error) {
	sys := "You are a legal document analysis expert. Extract structured information from contracts accurately."
	user := "Extract the following fields from this contract. Return valid JSON only.\n\nContract text:\n" +
		truncate(contractText, 24000) + `

Extract these fields (set to null if not found):
- parties: array of party names (organizations/individuals)
- effective_date: date when contract becomes effective
- term: contract duration/term length
- governing_law: jurisdiction/governing law
- payment_terms: payment conditions and schedule
- termination: termination conditions
- auto_renewal: auto-renewal clause details
- confidentiality: confidentiality provisions
- indemnity: indemnification provisions
- liability_cap_amount: liability cap amount (number only)
- liability_cap_currency: currency for liability cap (USD, EUR, etc.)
- signatories: array of objects with "name" and "title" fields`

	return c.chat(ctx, []map[string]string{
		{"role": "system", "content": sys},
		{"role": "user", "content": user},
	}, 0.1, 2000, true)
}

func (c *OpenAIClient) chat(ctx context.Context, messages []map[string]string, temperature float64, maxTokens int, jsonMode bool) (string, error) {
	if c.config.APIKey == "" {
		return "", errors.New("PROVIDER_API_KEY unset")
	}

	payload := map[string]any{
		"model":       c.config.AnswerModel,
		"messages":    messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	if jsonMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(payload)

	req, err := http.NewRequestWithContext(ctx, "POST",
		"https://api.openai.com/v1/chat/completions", &buf)
	if err != nil {
		return "", err
	}

	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct{ Error struct{ Message string } }
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error.Message != "" {
			return "", errors.New(e.Error.Message)
		}
		return "", errors.New(resp.Status)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices")
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

// setHeaders sets common headers for OpenAI requests
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
