package gemini

import (
	"context"
	"testing"

	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

type stubGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (s *stubGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.contents = contents
	s.config = config
	return s.resp, s.err
}

func reply(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestCompleteSendsScreenshotInline(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{resp: reply(&genai.Part{Text: `{"action":"none"}`})}
	b := &Backend{models: stub, model: DefaultModel, maxTokens: 256}

	text, err := b.Complete(context.Background(), oracle.Request{System: "sys", Prompt: "next?", Screenshot: []byte{9}})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"none"}`, text)

	require.Len(t, stub.contents, 1)
	require.Len(t, stub.contents[0].Parts, 2)
	assert.Equal(t, "next?", stub.contents[0].Parts[0].Text)
	require.NotNil(t, stub.contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", stub.contents[0].Parts[1].InlineData.MIMEType)
	require.NotNil(t, stub.config.SystemInstruction)
	assert.Equal(t, "sys", stub.config.SystemInstruction.Parts[0].Text)
	assert.EqualValues(t, 256, stub.config.MaxOutputTokens)
}

func TestCompleteSkipsThoughtParts(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{resp: reply(
		&genai.Part{Text: "thinking about buttons", Thought: true},
		&genai.Part{Text: `{"action":"click","target":{"ref":3}}`},
	)}
	b := &Backend{models: stub, model: DefaultModel, maxTokens: 256}

	text, err := b.Complete(context.Background(), oracle.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"click","target":{"ref":3}}`, text)
}

func TestCompleteMapsUnauthorized(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{err: genai.APIError{Code: 401, Message: "API key not valid"}}
	b := &Backend{models: stub, model: DefaultModel}

	_, err := b.Complete(context.Background(), oracle.Request{Prompt: "p"})
	assert.ErrorIs(t, err, oracle.ErrUnauthorized)
}

func TestResponseTextEmpty(t *testing.T) {
	t.Parallel()

	_, err := responseText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}
