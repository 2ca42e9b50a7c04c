// Package openaicompat talks to a local OpenAI-compatible chat endpoint such as Jan, LM Studio
// or vLLM.
package openaicompat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "http://127.0.0.1:1337"
	DefaultModel   = "llama-3.2-11b-vision-instruct"

	noScreenshotNote = "\n\n[The page screenshot is not available to this model. Rely on the text context above.]"
)

// Config describes the endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Vision marks the model as able to accept images.
	Vision      bool
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int64
}

// Backend implements oracle.Backend over the chat completions API.
type Backend struct {
	client openai.Client
	cfg    Config
	logger logger.Logger
}

// New creates a backend. Retries are disabled so the caller's retry policy is the only one.
func New(cfg Config, log logger.Logger) (*Backend, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "jan-api-key"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("openaicompat: base url must start with http:// or https://: %q", cfg.BaseURL)
	}
	if log == nil {
		log = logger.Nop{}
	}

	client := openai.NewClient(
		option.WithBaseURL(apiBase(cfg.BaseURL)),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)

	return &Backend{
		client: client,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"backend": "openai", "model": cfg.Model}),
	}, nil
}

// apiBase normalises a server root or an API root to ".../v1/".
func apiBase(raw string) string {
	base := strings.TrimRight(raw, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

func (b *Backend) Name() string { return "openai" }

func (b *Backend) SupportsVision() bool { return b.cfg.Vision }

// Complete sends the request. When a request carrying a screenshot fails or comes back empty it
// is retried once as text only, since many local models reject image parts.
func (b *Backend) Complete(ctx context.Context, req oracle.Request) (string, error) {
	if len(req.Screenshot) == 0 || !b.cfg.Vision {
		return b.chat(ctx, req.System, openai.UserMessage(req.Prompt))
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Screenshot)
	visionMsg := openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	})

	text, err := b.chat(ctx, req.System, visionMsg)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if errors.Is(err, oracle.ErrUnauthorized) {
		return "", err
	}

	fields := map[string]interface{}{}
	if err != nil {
		fields["error"] = err.Error()
	}
	b.logger.Warn(ctx, "vision request failed, retrying without screenshot", fields)

	return b.chat(ctx, req.System, openai.UserMessage(req.Prompt+noScreenshotNote))
}

func (b *Backend) chat(ctx context.Context, system string, user openai.ChatCompletionMessageParamUnion) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, user)

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(b.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(b.cfg.Temperature),
		MaxTokens:   openai.Int(b.cfg.MaxTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return "", fmt.Errorf("openaicompat: %w", oracle.ErrUnauthorized)
		}
		return "", fmt.Errorf("openaicompat: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openaicompat: no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
