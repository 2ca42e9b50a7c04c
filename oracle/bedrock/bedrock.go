// Package bedrock is an AWS Bedrock backend using Anthropic's messages format.
package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
)

// Error codes that mean the credentials, not the request, are the problem.
var authErrorCodes = map[string]bool{
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"UnrecognizedClientException": true,
	"InvalidSignatureException":   true,
	"InvalidClientTokenId":        true,
}

type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Backend implements oracle.Backend and oracle.Reauthenticator.
type Backend struct {
	region    string
	modelID   string
	maxTokens int

	mu     sync.Mutex
	client invoker
}

// New creates a Bedrock backend using the default AWS credential chain.
func New(ctx context.Context, region, modelID string, maxTokens int) (*Backend, error) {
	if modelID == "" {
		return nil, fmt.Errorf("bedrock: model id is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	b := &Backend{region: region, modelID: modelID, maxTokens: maxTokens}
	if err := b.Reauthenticate(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) Name() string { return "bedrock" }

func (b *Backend) SupportsVision() bool { return true }

// Reauthenticate reloads the AWS configuration, picking up rotated credentials.
func (b *Backend) Reauthenticate(ctx context.Context) error {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(b.region))
	if err != nil {
		return fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}
	b.mu.Lock()
	b.client = bedrockruntime.NewFromConfig(cfg)
	b.mu.Unlock()
	return nil
}

// Complete invokes the model once.
func (b *Backend) Complete(ctx context.Context, req oracle.Request) (string, error) {
	payload, err := requestBody(req, b.maxTokens)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	output, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && authErrorCodes[apiErr.ErrorCode()] {
			return "", fmt.Errorf("bedrock: %s: %w", apiErr.ErrorCode(), oracle.ErrUnauthorized)
		}
		return "", fmt.Errorf("bedrock: failed to invoke model: %w", err)
	}

	return responseText(output.Body)
}

// requestBody builds the Anthropic messages payload. The screenshot, when present, is sent as an
// image block ahead of the text.
func requestBody(req oracle.Request, maxTokens int) ([]byte, error) {
	content := make([]map[string]interface{}, 0, 2)
	if len(req.Screenshot) > 0 {
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": "image/png",
				"data":       base64.StdEncoding.EncodeToString(req.Screenshot),
			},
		})
	}
	content = append(content, map[string]interface{}{
		"type": "text",
		"text": req.Prompt,
	})

	body := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"temperature":       0.2,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": content,
			},
		},
	}
	if req.System != "" {
		body["system"] = req.System
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to marshal request: %w", err)
	}
	return payload, nil
}

func responseText(raw []byte) (string, error) {
	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("bedrock: failed to unmarshal response: %w", err)
	}

	var parts []string
	for _, c := range response.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", fmt.Errorf("bedrock: no text content in response")
	}
	return text, nil
}
