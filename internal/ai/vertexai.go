package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient creates a new client for the Google Gemini API.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	// Defaults for Gemini API
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.AnswerModel == "" {
		config.AnswerModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}

	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config: config,
		client: client,
	}, nil
}

// Embed implements the embedding functionality using the Gemini API
func (c *VertexAIClient) Embed(text string) ([]float32, error) {
	ctx := context.Background()
	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}

	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if res == nil || len(res.Embeddings) == 0 {
		return nil, errors.New("no embedding returned")
	}

	return res.Embeddings[0].Values, nil
}

// Answer synthesizes an answer from the retrieved contract excerpts.
func (c *VertexAIClient) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	sys := genai.Text("You are a legal document analyst. Answer questions accurately based on the provided contract text. Include specific details and quote relevant passages when possible. If the answer cannot be found in the context, say \"I cannot find this information in the provided contracts.\"")
	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		MaxOutputTokens:   int32(1000),
		SystemInstruction: sys[0],
	}

	user := "Context:\n" + truncate(strings.Join(contexts, "\n\n"), 24000) +
		"\n\nQuestion: " + question + "\n\nAnswer:"
	resp, err := c.client.Models.GenerateContent(ctx, c.config.AnswerModel, genai.Text(user), &cfg)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}

	return firstCandidateText(resp)
}

// Extract asks the model for the contract's structured fields as JSON.
func (c *VertexAIClient) Extract(ctx context.Context, contractText string) (string, error) {
	sys := genai.Text("You are a legal document analysis expert. Extract structured information from contracts accurately. Respond with a single valid JSON object and nothing else.")
	temp := float32(0.1)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		MaxOutputTokens:   int32(2000),
		ResponseMIMEType:  "application/json",
		SystemInstruction: sys[0],
	}

	user := "Extract from this contract: parties, effective_date, term, governing_law, payment_terms, termination, auto_renewal, confidentiality, indemnity, liability_cap_amount, liability_cap_currency, signatories (array of {name, title}). Set missing fields to null.\n\nContract text:\n" +
		truncate(contractText, 24000)
	resp, err := c.client.Models.GenerateContent(ctx, c.config.AnswerModel, genai.Text(user), &cfg)
	if err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}

	return firstCandidateText(resp)
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content returned")
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}
