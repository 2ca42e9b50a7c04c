package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	client, err := NewClient(map[string]string{
		"token":      "test-token",
		"base_url":   server.URL,
		"repository": "owner/repo",
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		credentials map[string]string
		wantErr     bool
	}{
		{name: "valid credentials", credentials: map[string]string{"token": "ghp_test"}},
		{name: "missing token", credentials: map[string]string{}, wantErr: true},
		{name: "with base_url", credentials: map[string]string{"token": "ghp_test", "base_url": "https://ghe.example/api/v3/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, err := NewClient(tt.credentials)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestCreateIssue(t *testing.T) {
	t.Parallel()

	var got issueRequest
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/owner/repo/issues", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"number":   42,
			"title":    got.Title,
			"html_url": "https://github.com/owner/repo/issues/42",
		})
	}))
	defer server.Close()

	issue, err := client.CreateIssue(context.Background(), issuetracker.CreateIssueInput{
		Title:       "Cart total is negative",
		Description: "steps",
		Severity:    "Major",
		Labels:      []string{"ui-sentinel"},
	})
	require.NoError(t, err)
	assert.Equal(t, "owner/repo#42", issue.ExternalID)
	assert.Equal(t, "https://github.com/owner/repo/issues/42", issue.URL)
	assert.Equal(t, issuetracker.ProviderGitHub, issue.Provider)
	assert.Equal(t, []string{"ui-sentinel", "severity:major"}, got.Labels)
	assert.Equal(t, "steps", got.Body)
}

func TestCreateIssueWithRepositoryOverride(t *testing.T) {
	t.Parallel()

	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/web/issues", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"number": 1})
	}))
	defer server.Close()

	issue, err := client.CreateIssue(context.Background(), issuetracker.CreateIssueInput{Title: "t", Repository: "acme/web"})
	require.NoError(t, err)
	assert.Equal(t, "acme/web#1", issue.ExternalID)
}

func TestCreateIssueServerError(t *testing.T) {
	t.Parallel()

	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := client.CreateIssue(context.Background(), issuetracker.CreateIssueInput{Title: "t"})
	assert.Error(t, err)
}

func TestValidateConnection(t *testing.T) {
	t.Parallel()

	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	assert.ErrorIs(t, client.ValidateConnection(context.Background()), issuetracker.ErrConnectionFailed)
}

func TestParseOwnerRepo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		owner   string
		repo    string
		wantErr bool
	}{
		{in: "owner/repo", owner: "owner", repo: "repo"},
		{in: "owner", wantErr: true},
		{in: "/repo", wantErr: true},
		{in: "owner/", wantErr: true},
	}

	for _, tt := range tests {
		owner, repo, err := parseOwnerRepo(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}
