package jira

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

// defaultPriorities maps defect severity onto Jira's stock priority scheme.
var defaultPriorities = map[string]string{
	"blocker":  "Highest",
	"critical": "High",
	"major":    "Medium",
	"minor":    "Low",
	"trivial":  "Lowest",
}

// Client files defects through the Jira REST API v2, which accepts plain-text (wiki markup)
// descriptions.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	email          string
	apiToken       string
	defaultProject string
	issueType      string
	setPriority    bool
}

// NewClient creates a Jira client. Required credentials: url, email, api_token. Optional:
// project_key, issue_type (default Bug) and set_priority ("false" to leave priority unset for
// projects whose create screen hides it).
func NewClient(credentials map[string]string) (*Client, error) {
	baseURL := strings.TrimRight(credentials["url"], "/")
	if baseURL == "" {
		return nil, fmt.Errorf("jira: url is required")
	}
	email := credentials["email"]
	if email == "" {
		return nil, fmt.Errorf("jira: email is required")
	}
	apiToken := credentials["api_token"]
	if apiToken == "" {
		return nil, fmt.Errorf("jira: api_token is required")
	}

	issueType := credentials["issue_type"]
	if issueType == "" {
		issueType = "Bug"
	}

	return &Client{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        baseURL,
		email:          email,
		apiToken:       apiToken,
		defaultProject: credentials["project_key"],
		issueType:      issueType,
		setPriority:    credentials["set_priority"] != "false",
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("jira: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("jira: failed to create request: %w", err)
	}

	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

type named struct {
	Name string `json:"name"`
}

type createFields struct {
	Project     map[string]string `json:"project"`
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	IssueType   named             `json:"issuetype"`
	Priority    *named            `json:"priority,omitempty"`
	Labels      []string          `json:"labels,omitempty"`
}

// CreateIssue creates a Jira issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, input issuetracker.CreateIssueInput) (*issuetracker.Issue, error) {
	projectKey := input.ProjectKey
	if projectKey == "" {
		projectKey = c.defaultProject
	}
	if projectKey == "" {
		return nil, fmt.Errorf("jira: project_key is required")
	}

	issueType := input.IssueType
	if issueType == "" {
		issueType = c.issueType
	}

	fields := createFields{
		Project:     map[string]string{"key": projectKey},
		Summary:     truncate(input.Title, 255),
		Description: input.Description,
		IssueType:   named{Name: issueType},
		Labels:      sanitizeLabels(input.Labels),
	}
	if p, ok := defaultPriorities[strings.ToLower(input.Severity)]; ok && c.setPriority {
		fields.Priority = &named{Name: p}
	}

	apiURL := fmt.Sprintf("%s/rest/api/2/issue", c.baseURL)
	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, map[string]interface{}{"fields": fields})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("jira: create issue failed with status %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("jira: failed to decode response: %w", err)
	}
	if created.Key == "" {
		return nil, fmt.Errorf("jira: response carried no issue key")
	}

	return &issuetracker.Issue{
		ExternalID: created.Key,
		Title:      fields.Summary,
		URL:        fmt.Sprintf("%s/browse/%s", c.baseURL, created.Key),
		Provider:   issuetracker.ProviderJira,
	}, nil
}

// ValidateConnection validates the Jira connection by fetching the authenticated user.
func (c *Client) ValidateConnection(ctx context.Context) error {
	apiURL := fmt.Sprintf("%s/rest/api/2/myself", c.baseURL)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", issuetracker.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", issuetracker.ErrConnectionFailed, resp.StatusCode)
	}

	return nil
}

// Jira labels cannot contain spaces.
func sanitizeLabels(labels []string) []string {
	var out []string
	for _, l := range labels {
		l = strings.Join(strings.Fields(l), "-")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
