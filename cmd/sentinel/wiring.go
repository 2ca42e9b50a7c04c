package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker"
	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker/github"
	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker/jira"
	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle/bedrock"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle/gemini"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle/gigachat"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle/openaicompat"
)

// newBackend builds the decision backend named by cfg.Oracle.Provider. Validate must have run.
func newBackend(ctx context.Context, cfg *Config, log logger.Logger) (oracle.Backend, error) {
	o := cfg.Oracle
	switch o.Provider {
	case "gigachat":
		return gigachat.New(gigachat.Config{
			AuthMode:           gigachat.AuthMode(o.GigaChat.AuthMode),
			AuthURL:            o.GigaChat.AuthURL,
			ChatURL:            o.GigaChat.ChatURL,
			Model:              o.GigaChat.Model,
			Scope:              o.GigaChat.Scope,
			AuthorizationKey:   o.GigaChat.AuthorizationKey,
			ClientID:           o.GigaChat.ClientID,
			ClientSecret:       o.GigaChat.ClientSecret,
			Username:           o.GigaChat.Username,
			Password:           o.GigaChat.Password,
			AccessToken:        o.GigaChat.AccessToken,
			InsecureSkipVerify: o.GigaChat.InsecureSkipVerify,
			Timeout:            o.GigaChat.Timeout,
			Temperature:        o.Temperature,
			MaxTokens:          o.MaxTokens,
		}, log)
	case "openai":
		return openaicompat.New(openaicompat.Config{
			BaseURL:     o.OpenAI.BaseURL,
			APIKey:      o.OpenAI.APIKey,
			Model:       o.OpenAI.Model,
			Vision:      o.OpenAI.Vision,
			Timeout:     o.OpenAI.Timeout,
			Temperature: o.Temperature,
			MaxTokens:   int64(o.MaxTokens),
		}, log)
	case "bedrock":
		return bedrock.New(ctx, o.Bedrock.Region, o.Bedrock.Model, o.MaxTokens)
	case "gemini":
		return gemini.New(ctx, o.Gemini.APIKey, o.Gemini.Model, o.MaxTokens)
	}
	return nil, fmt.Errorf("unsupported oracle provider %q", o.Provider)
}

// newTracker returns nil when filing is disabled.
func newTracker(cfg *Config) (issuetracker.Client, error) {
	t := cfg.Tracker
	switch issuetracker.ProviderType(t.Provider) {
	case "":
		return nil, nil
	case issuetracker.ProviderJira:
		return jira.NewClient(map[string]string{
			"url":          t.Jira.URL,
			"email":        t.Jira.Email,
			"api_token":    t.Jira.APIToken,
			"project_key":  t.Jira.ProjectKey,
			"issue_type":   t.Jira.IssueType,
			"set_priority": strconv.FormatBool(t.Jira.SetPriority),
		})
	case issuetracker.ProviderGitHub:
		return github.NewClient(map[string]string{
			"token":      t.GitHub.Token,
			"base_url":   t.GitHub.BaseURL,
			"repository": t.GitHub.Repository,
		})
	}
	return nil, fmt.Errorf("%w: %s", issuetracker.ErrInvalidProvider, t.Provider)
}

func observationLimits(a AgentConfig) observation.Limits {
	limits := observation.DefaultLimits()
	if a.MaxConsole > 0 {
		limits.Console = a.MaxConsole
	}
	if a.MaxNetwork > 0 {
		limits.Network = a.MaxNetwork
	}
	if a.MaxElements > 0 {
		limits.Elements = a.MaxElements
	}
	return limits
}

func newLogger(cfg *Config) *logger.LogrusLogger {
	return logger.NewLogrusLoggerWithOptions(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}
