package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker"
)

const defaultBaseURL = "https://api.github.com"

// Client files defects as GitHub issues. Severity becomes a "severity:<level>" label.
type Client struct {
	httpClient  *http.Client
	token       string
	baseURL     string
	defaultRepo string
}

// NewClient creates a GitHub client. Required credentials: token. Optional: base_url (GitHub
// Enterprise) and repository ("owner/repo").
func NewClient(credentials map[string]string) (*Client, error) {
	token := credentials["token"]
	if token == "" {
		return nil, fmt.Errorf("github: token is required")
	}

	baseURL := defaultBaseURL
	if u := credentials["base_url"]; u != "" {
		baseURL = strings.TrimRight(u, "/")
	}

	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		token:       token,
		baseURL:     baseURL,
		defaultRepo: credentials["repository"],
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("github: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("github: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// parseOwnerRepo parses "owner/repo" into owner and repo.
func parseOwnerRepo(repository string) (owner, repo string, err error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: invalid repository format, expected owner/repo")
	}
	return parts[0], parts[1], nil
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

type githubIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
}

// CreateIssue creates a GitHub issue.
func (c *Client) CreateIssue(ctx context.Context, input issuetracker.CreateIssueInput) (*issuetracker.Issue, error) {
	repository := input.Repository
	if repository == "" {
		repository = c.defaultRepo
	}
	if repository == "" {
		return nil, fmt.Errorf("github: repository is required")
	}
	owner, repo, err := parseOwnerRepo(repository)
	if err != nil {
		return nil, err
	}

	labels := append([]string(nil), input.Labels...)
	if input.Severity != "" {
		labels = append(labels, "severity:"+strings.ToLower(input.Severity))
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, owner, repo)
	resp, err := c.doRequest(ctx, http.MethodPost, url, issueRequest{
		Title:  input.Title,
		Body:   input.Description,
		Labels: labels,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github: create issue failed with status %d: %s", resp.StatusCode, string(body))
	}

	var gi githubIssue
	if err := json.NewDecoder(resp.Body).Decode(&gi); err != nil {
		return nil, fmt.Errorf("github: failed to decode response: %w", err)
	}

	return &issuetracker.Issue{
		ExternalID: fmt.Sprintf("%s/%s#%d", owner, repo, gi.Number),
		Title:      gi.Title,
		URL:        gi.HTMLURL,
		Provider:   issuetracker.ProviderGitHub,
	}, nil
}

// ValidateConnection validates the GitHub connection by fetching the authenticated user.
func (c *Client) ValidateConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/user", c.baseURL)
	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", issuetracker.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", issuetracker.ErrConnectionFailed, resp.StatusCode)
	}

	return nil
}
