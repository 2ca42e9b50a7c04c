// Package gemini is a Google Gemini backend built on the official genai client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	genai "google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Backend implements oracle.Backend.
type Backend struct {
	models    generator
	model     string
	maxTokens int32
}

// New creates a Gemini backend. An empty apiKey lets the client read GEMINI_API_KEY or
// GOOGLE_API_KEY from the environment.
func New(ctx context.Context, apiKey, model string, maxTokens int) (*Backend, error) {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &Backend{models: cli.Models, model: model, maxTokens: int32(maxTokens)}, nil
}

func (b *Backend) Name() string { return "gemini" }

func (b *Backend) SupportsVision() bool { return true }

// Complete generates one reply.
func (b *Backend) Complete(ctx context.Context, req oracle.Request) (string, error) {
	resp, err := b.models.GenerateContent(ctx, b.model, contents(req), b.config(req))
	if err != nil {
		if isUnauthorized(err) {
			return "", fmt.Errorf("gemini: %w", oracle.ErrUnauthorized)
		}
		return "", fmt.Errorf("gemini: generate content failed: %w", err)
	}
	return responseText(resp)
}

func (b *Backend) config(req oracle.Request) *genai.GenerateContentConfig {
	temperature := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  b.maxTokens,
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	return cfg
}

func contents(req oracle.Request) []*genai.Content {
	parts := []*genai.Part{{Text: req.Prompt}}
	if len(req.Screenshot) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: req.Screenshot}})
	}
	return []*genai.Content{{Role: "user", Parts: parts}}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: no candidates in response")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}

func isUnauthorized(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusUnauthorized || apiErrPtr.Code == http.StatusForbidden
	}
	return false
}
