package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/issuetracker"
	"github.com/hairizuanbinnoorazman/ui-sentinel/noise"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle/gigachat"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle/openaicompat"
	"github.com/hairizuanbinnoorazman/ui-sentinel/storage"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	StartURL string
	Log      LogConfig
	Browser  BrowserConfig
	Agent    AgentConfig
	Oracle   OracleConfig
	Tracker  TrackerConfig
	Storage  storage.Config
	Noise    noise.RuleSet
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// BrowserConfig holds browser and visible-action configuration.
type BrowserConfig struct {
	Headless          bool
	Width             int
	Height            int
	UserDataDir       string
	ExecPath          string
	IgnoreCertErrors  bool
	NavigationTimeout time.Duration
	SlowMo            time.Duration
	HighlightDuration time.Duration
	SettleDelay       time.Duration
	// OverlayIgnore hides chat and support widgets from the element snapshot.
	OverlayIgnore []string
}

// AgentConfig holds loop pacing and observation limits.
type AgentConfig struct {
	IterationDelay time.Duration
	MaxIterations  int
	StepTimeout    time.Duration
	DecideTimeout  time.Duration
	CollectTimeout time.Duration
	HistorySteps   int
	TestedLimit    int
	MaxConsole     int
	MaxNetwork     int
	MaxElements    int
	ConfirmDefects bool
}

// OracleConfig selects the decision backend.
type OracleConfig struct {
	Provider    string
	MinInterval time.Duration
	MaxTokens   int
	Temperature float64
	GigaChat    GigaChatConfig
	OpenAI      OpenAIConfig
	Bedrock     BedrockConfig
	Gemini      GeminiConfig
}

type GigaChatConfig struct {
	AuthMode           string
	AuthURL            string
	ChatURL            string
	Model              string
	Scope              string
	AuthorizationKey   string
	ClientID           string
	ClientSecret       string
	Username           string
	Password           string
	AccessToken        string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Vision  bool
	Timeout time.Duration
}

type BedrockConfig struct {
	Region string
	Model  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// TrackerConfig selects where defects are filed. An empty provider disables filing.
type TrackerConfig struct {
	Provider      string
	SummaryPrefix string
	Labels        []string
	Jira          JiraConfig
	GitHub        GitHubConfig
}

type JiraConfig struct {
	URL         string
	Email       string
	APIToken    string
	ProjectKey  string
	IssueType   string
	SetPriority bool
}

type GitHubConfig struct {
	Token      string
	BaseURL    string
	Repository string
}

// legacyEnv lists environment names accepted in addition to the derived ones, such as
// BROWSER_HEADLESS for browser.headless.
var legacyEnv = map[string][]string{
	"oracle.provider":                   {"LLM_PROVIDER"},
	"oracle.openai.base_url":            {"JAN_API_URL"},
	"oracle.openai.api_key":             {"JAN_API_KEY"},
	"oracle.openai.model":               {"JAN_MODEL"},
	"oracle.gigachat.auth_url":          {"GIGACHAT_TOKEN_URL"},
	"oracle.gigachat.chat_url":          {"GIGACHAT_API_URL"},
	"oracle.gigachat.model":             {"GIGACHAT_MODEL"},
	"oracle.gigachat.scope":             {"GIGACHAT_SCOPE"},
	"oracle.gigachat.authorization_key": {"GIGACHAT_AUTHORIZATION_KEY", "GIGACHAT_CREDENTIALS"},
	"oracle.gigachat.client_id":         {"GIGACHAT_CLIENT_ID"},
	"oracle.gigachat.client_secret":     {"GIGACHAT_CLIENT_SECRET"},
	"oracle.gigachat.username":          {"GIGACHAT_USERNAME"},
	"oracle.gigachat.password":          {"GIGACHAT_PASSWORD"},
	"oracle.gigachat.access_token":      {"GIGACHAT_TOKEN_HEADER"},
	"oracle.gemini.api_key":             {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"oracle.bedrock.region":             {"AWS_REGION"},
	"tracker.jira.url":                  {"JIRA_URL"},
	"tracker.jira.email":                {"JIRA_EMAIL", "JIRA_USERNAME"},
	"tracker.jira.api_token":            {"JIRA_API_TOKEN"},
	"tracker.jira.project_key":          {"JIRA_PROJECT_KEY"},
	"tracker.jira.issue_type":           {"JIRA_ISSUE_TYPE"},
	"tracker.github.token":              {"GITHUB_TOKEN"},
	"browser.headless":                  {"HEADLESS"},
	"browser.highlight_duration":        {"HIGHLIGHT_DURATION_MS"},
	"browser.width":                     {"VIEWPORT_WIDTH"},
	"browser.height":                    {"VIEWPORT_HEIGHT"},
	"agent.max_iterations":              {"MAX_STEPS"},
	"agent.confirm_defects":             {"ENABLE_SECOND_PASS_BUG"},
	"browser.overlay_ignore_patterns":   {"OVERLAY_IGNORE_PATTERNS"},
}

// defaultOverlayIgnore matches the id, class or aria-label of common chat, callback and feedback
// widgets.
var defaultOverlayIgnore = []string{
	"chat", "чат", "support", "поддержк", "help", "консультант", "jivo", "intercom", "crisp",
	"drift", "tawk", "livechat", "live-chat", "widget-chat", "chat-widget", "feedback", "обратн",
	"звонок", "callback",
}

// LoadConfig loads configuration from an optional .env file, a YAML file and environment
// variables, in increasing order of precedence.
func LoadConfig(configPath, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sentinel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range legacyEnv {
		derived := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, derived}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	config.StartURL = v.GetString("start_url")

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")
	config.Log.File = v.GetString("log.file")
	config.Log.MaxSizeMB = v.GetInt("log.max_size_mb")
	config.Log.MaxBackups = v.GetInt("log.max_backups")
	config.Log.MaxAgeDays = v.GetInt("log.max_age_days")

	config.Browser.Headless = v.GetBool("browser.headless")
	config.Browser.Width = v.GetInt("browser.width")
	config.Browser.Height = v.GetInt("browser.height")
	config.Browser.UserDataDir = v.GetString("browser.user_data_dir")
	config.Browser.ExecPath = v.GetString("browser.exec_path")
	config.Browser.IgnoreCertErrors = v.GetBool("browser.ignore_cert_errors")
	config.Browser.NavigationTimeout = durationMS(v, "browser.navigation_timeout")
	config.Browser.SlowMo = durationMS(v, "browser.slow_mo")
	config.Browser.HighlightDuration = durationMS(v, "browser.highlight_duration")
	config.Browser.SettleDelay = durationMS(v, "browser.settle_delay")
	config.Browser.OverlayIgnore = stringList(v, "browser.overlay_ignore_patterns")

	config.Agent.IterationDelay = durationMS(v, "agent.iteration_delay")
	config.Agent.MaxIterations = v.GetInt("agent.max_iterations")
	config.Agent.StepTimeout = durationMS(v, "agent.step_timeout")
	config.Agent.DecideTimeout = durationMS(v, "agent.decide_timeout")
	config.Agent.CollectTimeout = durationMS(v, "agent.collect_timeout")
	config.Agent.HistorySteps = v.GetInt("agent.history_steps")
	config.Agent.TestedLimit = v.GetInt("agent.tested_limit")
	config.Agent.MaxConsole = v.GetInt("agent.max_console")
	config.Agent.MaxNetwork = v.GetInt("agent.max_network")
	config.Agent.MaxElements = v.GetInt("agent.max_elements")
	config.Agent.ConfirmDefects = v.GetBool("agent.confirm_defects")

	config.Oracle.Provider = v.GetString("oracle.provider")
	config.Oracle.MinInterval = durationMS(v, "oracle.min_interval")
	config.Oracle.MaxTokens = v.GetInt("oracle.max_tokens")
	config.Oracle.Temperature = v.GetFloat64("oracle.temperature")

	config.Oracle.GigaChat.AuthMode = v.GetString("oracle.gigachat.auth_mode")
	config.Oracle.GigaChat.AuthURL = v.GetString("oracle.gigachat.auth_url")
	config.Oracle.GigaChat.ChatURL = v.GetString("oracle.gigachat.chat_url")
	config.Oracle.GigaChat.Model = v.GetString("oracle.gigachat.model")
	config.Oracle.GigaChat.Scope = v.GetString("oracle.gigachat.scope")
	config.Oracle.GigaChat.AuthorizationKey = v.GetString("oracle.gigachat.authorization_key")
	config.Oracle.GigaChat.ClientID = v.GetString("oracle.gigachat.client_id")
	config.Oracle.GigaChat.ClientSecret = v.GetString("oracle.gigachat.client_secret")
	config.Oracle.GigaChat.Username = v.GetString("oracle.gigachat.username")
	config.Oracle.GigaChat.Password = v.GetString("oracle.gigachat.password")
	config.Oracle.GigaChat.AccessToken = v.GetString("oracle.gigachat.access_token")
	config.Oracle.GigaChat.InsecureSkipVerify = v.GetBool("oracle.gigachat.insecure_skip_verify")
	config.Oracle.GigaChat.Timeout = durationMS(v, "oracle.gigachat.timeout")

	config.Oracle.OpenAI.BaseURL = v.GetString("oracle.openai.base_url")
	config.Oracle.OpenAI.APIKey = v.GetString("oracle.openai.api_key")
	config.Oracle.OpenAI.Model = v.GetString("oracle.openai.model")
	config.Oracle.OpenAI.Vision = v.GetBool("oracle.openai.vision")
	config.Oracle.OpenAI.Timeout = durationMS(v, "oracle.openai.timeout")

	config.Oracle.Bedrock.Region = v.GetString("oracle.bedrock.region")
	config.Oracle.Bedrock.Model = v.GetString("oracle.bedrock.model")

	config.Oracle.Gemini.APIKey = v.GetString("oracle.gemini.api_key")
	config.Oracle.Gemini.Model = v.GetString("oracle.gemini.model")

	config.Tracker.Provider = v.GetString("tracker.provider")
	config.Tracker.SummaryPrefix = v.GetString("tracker.summary_prefix")
	config.Tracker.Labels = v.GetStringSlice("tracker.labels")
	config.Tracker.Jira.URL = v.GetString("tracker.jira.url")
	config.Tracker.Jira.Email = v.GetString("tracker.jira.email")
	config.Tracker.Jira.APIToken = v.GetString("tracker.jira.api_token")
	config.Tracker.Jira.ProjectKey = v.GetString("tracker.jira.project_key")
	config.Tracker.Jira.IssueType = v.GetString("tracker.jira.issue_type")
	config.Tracker.Jira.SetPriority = v.GetBool("tracker.jira.set_priority")
	config.Tracker.GitHub.Token = v.GetString("tracker.github.token")
	config.Tracker.GitHub.BaseURL = v.GetString("tracker.github.base_url")
	config.Tracker.GitHub.Repository = v.GetString("tracker.github.repository")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.Bucket = v.GetString("storage.bucket")
	config.Storage.Region = v.GetString("storage.region")
	config.Storage.Prefix = v.GetString("storage.prefix")
	config.Storage.PresignExpiry = durationMS(v, "storage.presign_expiry")

	config.Noise = noise.DefaultRuleSet()
	if v.IsSet("noise") {
		var custom noise.RuleSet
		if err := v.UnmarshalKey("noise", &custom); err != nil {
			return nil, fmt.Errorf("failed to parse noise rules: %w", err)
		}
		config.Noise = overlayRules(config.Noise, custom)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("start_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.width", 1920)
	v.SetDefault("browser.height", 1080)
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.ignore_cert_errors", false)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.slow_mo", "300ms")
	v.SetDefault("browser.highlight_duration", "800ms")
	v.SetDefault("browser.settle_delay", "500ms")
	v.SetDefault("browser.overlay_ignore_patterns", defaultOverlayIgnore)

	v.SetDefault("agent.iteration_delay", "2s")
	v.SetDefault("agent.max_iterations", 0)
	v.SetDefault("agent.step_timeout", "45s")
	v.SetDefault("agent.decide_timeout", "2m")
	v.SetDefault("agent.collect_timeout", "10s")
	v.SetDefault("agent.history_steps", 20)
	v.SetDefault("agent.tested_limit", 200)
	v.SetDefault("agent.max_console", 150)
	v.SetDefault("agent.max_network", 80)
	v.SetDefault("agent.max_elements", 120)
	v.SetDefault("agent.confirm_defects", true)

	v.SetDefault("oracle.provider", "gigachat")
	v.SetDefault("oracle.min_interval", "1s")
	v.SetDefault("oracle.max_tokens", 1024)
	v.SetDefault("oracle.temperature", 0.2)

	v.SetDefault("oracle.gigachat.auth_mode", "")
	v.SetDefault("oracle.gigachat.auth_url", gigachat.DefaultAuthURL)
	v.SetDefault("oracle.gigachat.chat_url", gigachat.DefaultChatURL)
	v.SetDefault("oracle.gigachat.model", gigachat.DefaultModel)
	v.SetDefault("oracle.gigachat.scope", gigachat.DefaultScope)
	v.SetDefault("oracle.gigachat.insecure_skip_verify", false)
	v.SetDefault("oracle.gigachat.timeout", "60s")

	v.SetDefault("oracle.openai.base_url", openaicompat.DefaultBaseURL)
	v.SetDefault("oracle.openai.api_key", "jan-api-key")
	v.SetDefault("oracle.openai.model", openaicompat.DefaultModel)
	v.SetDefault("oracle.openai.vision", true)
	v.SetDefault("oracle.openai.timeout", "120s")

	v.SetDefault("oracle.bedrock.region", "us-east-1")
	v.SetDefault("oracle.bedrock.model", "anthropic.claude-3-5-sonnet-20240620-v1:0")

	v.SetDefault("oracle.gemini.api_key", "")
	v.SetDefault("oracle.gemini.model", "gemini-2.5-flash")

	v.SetDefault("tracker.provider", "")
	v.SetDefault("tracker.summary_prefix", "[ui-sentinel]")
	v.SetDefault("tracker.labels", []string{"ui-sentinel"})
	v.SetDefault("tracker.jira.issue_type", "Bug")
	v.SetDefault("tracker.jira.set_priority", true)
	v.SetDefault("tracker.github.base_url", "https://api.github.com")

	v.SetDefault("storage.type", "")
	v.SetDefault("storage.base_dir", "./evidence")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presign_expiry", "168h")
}

func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// durationMS reads a duration, treating a bare number as milliseconds as the legacy
// BROWSER_SLOW_MO and HIGHLIGHT_DURATION_MS variables do.
func durationMS(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return v.GetDuration(key)
}

// stringList reads a list that may also be given as one comma-separated string, as the legacy
// OVERLAY_IGNORE_PATTERNS variable is.
func stringList(v *viper.Viper, key string) []string {
	out := []string{}
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func overlayRules(base, custom noise.RuleSet) noise.RuleSet {
	if custom.ConsolePatterns != nil {
		base.ConsolePatterns = custom.ConsolePatterns
	}
	if custom.NetworkURLPatterns != nil {
		base.NetworkURLPatterns = custom.NetworkURLPatterns
	}
	if custom.IgnoredStatuses != nil {
		base.IgnoredStatuses = custom.IgnoredStatuses
	}
	if custom.NetworkRules != nil {
		base.NetworkRules = custom.NetworkRules
	}
	if custom.DefectPatterns != nil {
		base.DefectPatterns = custom.DefectPatterns
	}
	return base
}

// Validate normalizes the configuration in place and reports the first invalid setting.
func (c *Config) Validate() error {
	startURL, err := normalizeStartURL(c.StartURL)
	if err != nil {
		return err
	}
	c.StartURL = startURL

	provider, err := normalizeProvider(c.Oracle.Provider)
	if err != nil {
		return err
	}
	c.Oracle.Provider = provider

	switch provider {
	case "gigachat":
		g := &c.Oracle.GigaChat
		if g.AuthMode == "" {
			switch {
			case g.AccessToken != "":
				g.AuthMode = string(gigachat.AuthToken)
			case g.Username != "":
				g.AuthMode = string(gigachat.AuthPassword)
			default:
				g.AuthMode = string(gigachat.AuthBasic)
			}
		}
	case "gemini":
		if c.Oracle.Gemini.APIKey == "" {
			return fmt.Errorf("oracle.gemini.api_key is required")
		}
	case "bedrock":
		if c.Oracle.Bedrock.Region == "" || c.Oracle.Bedrock.Model == "" {
			return fmt.Errorf("oracle.bedrock.region and oracle.bedrock.model are required")
		}
	}

	tracker, err := issuetracker.ParseProvider(c.Tracker.Provider)
	if err != nil {
		return fmt.Errorf("tracker.provider %q: %w", c.Tracker.Provider, err)
	}
	if tracker == "" && c.Tracker.Jira.URL != "" {
		tracker = issuetracker.ProviderJira
	}
	c.Tracker.Provider = string(tracker)
	switch tracker {
	case issuetracker.ProviderJira:
		j := c.Tracker.Jira
		if j.URL == "" || j.Email == "" || j.APIToken == "" || j.ProjectKey == "" {
			return fmt.Errorf("tracker.jira requires url, email, api_token and project_key")
		}
	case issuetracker.ProviderGitHub:
		if c.Tracker.GitHub.Token == "" || c.Tracker.GitHub.Repository == "" {
			return fmt.Errorf("tracker.github requires token and repository")
		}
	}

	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	switch c.Storage.Type {
	case "", "none":
		c.Storage.Type = ""
	case "local":
		dir, err := homedir.Expand(c.Storage.BaseDir)
		if err != nil {
			return fmt.Errorf("storage.base_dir: %w", err)
		}
		c.Storage.BaseDir = dir
	case "s3":
		if c.Storage.Bucket == "" || c.Storage.Region == "" {
			return fmt.Errorf("storage.s3 requires bucket and region")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported", c.Storage.Type)
	}

	if c.Log.File != "" {
		file, err := homedir.Expand(c.Log.File)
		if err != nil {
			return fmt.Errorf("log.file: %w", err)
		}
		c.Log.File = file
	}

	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative")
	}
	if c.Agent.IterationDelay < 0 || c.Browser.SlowMo < 0 || c.Browser.HighlightDuration < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

func normalizeStartURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("start_url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("start_url %q is not a valid URL", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("start_url %q must use http or https", raw)
	}
	return u.String(), nil
}

func normalizeProvider(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gigachat", "":
		return "gigachat", nil
	case "openai", "jan", "local", "openaicompat", "lmstudio":
		return "openai", nil
	case "bedrock":
		return "bedrock", nil
	case "gemini":
		return "gemini", nil
	}
	return "", fmt.Errorf("oracle.provider %q is not supported", name)
}
