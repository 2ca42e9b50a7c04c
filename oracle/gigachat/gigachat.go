// Package gigachat is a cloud chat-completion backend that authenticates through an OAuth token
// exchange and refreshes its token before expiry.
package gigachat

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultChatURL = "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"
	DefaultScope   = "GIGACHAT_API_PERS"
	DefaultModel   = "GigaChat"
)

// Config holds the connection and credential settings.
type Config struct {
	AuthMode AuthMode
	AuthURL  string
	ChatURL  string
	Model    string
	Scope    string

	// AuthorizationKey is base64("client_id:client_secret"). ClientID and ClientSecret are used
	// directly when it is empty.
	AuthorizationKey string
	ClientID         string
	ClientSecret     string

	Username string
	Password string

	AccessToken string

	InsecureSkipVerify bool
	Timeout            time.Duration
	Temperature        float64
	MaxTokens          int
}

// Backend implements oracle.Backend and oracle.Reauthenticator.
type Backend struct {
	cfg        Config
	httpClient *http.Client
	authClient *http.Client
	logger     logger.Logger
	now        func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// New creates a backend. No network call is made until the first completion.
func New(cfg Config, log logger.Logger) (*Backend, error) {
	if cfg.ChatURL == "" {
		cfg.ChatURL = DefaultChatURL
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthBasic
	}
	if cfg.AuthMode != AuthToken && cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.AuthMode == AuthBasic && cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	switch cfg.AuthMode {
	case AuthBasic:
		if _, _, err := cfg.clientCredentials(); err != nil {
			return nil, err
		}
	case AuthPassword:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("gigachat: username and password are required for password auth")
		}
	case AuthToken:
		if cfg.AccessToken == "" {
			return nil, fmt.Errorf("gigachat: access token is required for token auth")
		}
	default:
		return nil, fmt.Errorf("gigachat: unknown auth mode %q", cfg.AuthMode)
	}

	if log == nil {
		log = logger.Nop{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Backend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		authClient: &http.Client{Timeout: 30 * time.Second, Transport: rqUIDTransport{base: transport}},
		logger:     log.WithField("backend", "gigachat"),
		now:        time.Now,
	}, nil
}

func (b *Backend) Name() string { return "gigachat" }

// SupportsVision is false: the chat endpoint accepts text only.
func (b *Backend) SupportsVision() bool { return false }

// Reauthenticate discards the cached token and performs a fresh exchange.
func (b *Backend) Reauthenticate(ctx context.Context) error {
	if b.cfg.AuthMode == AuthToken {
		return ErrStaticToken
	}
	b.mu.Lock()
	b.token = nil
	b.mu.Unlock()

	_, err := b.accessToken(ctx)
	return err
}

func (b *Backend) accessToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != nil && b.now().Add(refreshSkew).Before(b.token.Expiry) {
		return b.token.AccessToken, nil
	}

	tok, err := b.exchange(ctx)
	if err != nil {
		return "", err
	}
	b.token = tok
	b.logger.Debug(ctx, "access token obtained", map[string]interface{}{
		"expires_at": tok.Expiry.Format(time.RFC3339),
	})
	return tok.AccessToken, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat-completion request. A 401 is reported as oracle.ErrUnauthorized.
func (b *Backend) Complete(ctx context.Context, req oracle.Request) (string, error) {
	token, err := b.accessToken(ctx)
	if err != nil {
		return "", err
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       b.cfg.Model,
		Messages:    messages,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gigachat: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.ChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gigachat: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gigachat: failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gigachat: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("gigachat: chat rejected token: %w", oracle.ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gigachat: unexpected status code %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("gigachat: failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("gigachat: no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncateBody(b []byte) string {
	if len(b) > 500 {
		return string(b[:500])
	}
	return string(b)
}
