// Package issuetracker defines the client used to file defects in an external tracker.
package issuetracker

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidProvider  = errors.New("issuetracker: invalid provider type")
	ErrConnectionFailed = errors.New("issuetracker: connection validation failed")
)

type ProviderType string

const (
	ProviderJira   ProviderType = "jira"
	ProviderGitHub ProviderType = "github"
)

func (p ProviderType) IsValid() bool {
	return p == ProviderJira || p == ProviderGitHub
}

// ParseProvider accepts provider names case-insensitively. An empty name means no tracker.
func ParseProvider(name string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(name)))
	if p == "" || p == "none" {
		return "", nil
	}
	if !p.IsValid() {
		return "", ErrInvalidProvider
	}
	return p, nil
}

// Issue is a ticket created in the tracker.
type Issue struct {
	ExternalID string       `json:"external_id"`
	Title      string       `json:"title"`
	URL        string       `json:"url"`
	Provider   ProviderType `json:"provider"`
}

// CreateIssueInput describes a defect ticket. Severity is one of blocker, critical, major,
// minor or trivial; each tracker maps it onto its own field.
type CreateIssueInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	ProjectKey  string   `json:"project_key"`
	IssueType   string   `json:"issue_type"`
	Repository  string   `json:"repository"`
	Labels      []string `json:"labels"`
}

type Client interface {
	CreateIssue(ctx context.Context, input CreateIssueInput) (*Issue, error)
	ValidateConnection(ctx context.Context) error
}
