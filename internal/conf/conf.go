package conf

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration
type Config struct {
	// Chat backend configuration
	Chat ChatConfig

	// Timeline engine configuration
	Timeline TimelineConfig

	// Display configuration (loaded from YAML)
	Display *DisplayConfig

	// Local API configuration
	API APIConfig

	// Debug mode
	Debug bool
}

// ChatConfig contains chat backend configuration
type ChatConfig struct {
	APIURL   string // REST base for history and group details
	PollsURL string // REST base for the poll listing
	WSURL    string // websocket endpoint of the live stream
	Token    string
	ViewerID string
	GroupID  string // conversation opened at startup (optional)
}

// TimelineConfig contains timeline engine configuration
type TimelineConfig struct {
	PollFetchDelayMs int // delay between history completion and the poll-listing fetch
	FetchTimeoutSecs int
	Timezone         string
}

// APIConfig contains local HTTP API configuration
type APIConfig struct {
	Port int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	apiURL := os.Getenv("CHAT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	pollsURL := os.Getenv("CHAT_POLLS_URL")
	if pollsURL == "" {
		pollsURL = "http://localhost:8080"
	}

	wsURL := os.Getenv("CHAT_WS_URL")
	if wsURL == "" {
		wsURL = "ws://localhost:8080/ws"
	}

	pollFetchDelay := 100
	if val := os.Getenv("POLL_FETCH_DELAY_MS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			pollFetchDelay = parsed
		}
	}

	fetchTimeout := 30
	if val := os.Getenv("FETCH_TIMEOUT_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			fetchTimeout = parsed
		}
	}

	apiPort := 9877
	if val := os.Getenv("API_PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			apiPort = parsed
		}
	}

	// Load display settings from YAML
	displayConfig, err := LoadDisplayConfig(os.Getenv("DISPLAY_CONFIG_PATH"))
	if err != nil {
		displayConfig = DefaultDisplayConfig()
	}

	// Env timezone overrides the YAML one
	timezone := os.Getenv("TIMELINE_TIMEZONE")
	if timezone == "" {
		timezone = displayConfig.Timezone
	}

	return &Config{
		Chat: ChatConfig{
			APIURL:   apiURL,
			PollsURL: pollsURL,
			WSURL:    wsURL,
			Token:    os.Getenv("CHAT_TOKEN"),
			ViewerID: os.Getenv("VIEWER_ID"),
			GroupID:  os.Getenv("GROUP_ID"),
		},
		Timeline: TimelineConfig{
			PollFetchDelayMs: pollFetchDelay,
			FetchTimeoutSecs: fetchTimeout,
			Timezone:         timezone,
		},
		Display: displayConfig,
		API: APIConfig{
			Port: apiPort,
		},
		Debug: os.Getenv("DEBUG") == "true",
	}
}

// PollFetchDelay returns the poll-listing deferral
func (c *TimelineConfig) PollFetchDelay() time.Duration {
	return time.Duration(c.PollFetchDelayMs) * time.Millisecond
}

// FetchTimeout returns the per-request timeout of REST fetches
func (c *TimelineConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// Location resolves the configured timezone, falling back to local time
func (c *TimelineConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &ConfigError{Field: "TIMELINE_TIMEZONE", Message: err.Error()}
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chat.ViewerID == "" {
		return &ConfigError{Field: "VIEWER_ID", Message: "required"}
	}
	if c.Chat.Token == "" {
		return &ConfigError{Field: "CHAT_TOKEN", Message: "required"}
	}
	if c.Timeline.PollFetchDelayMs < 0 {
		return &ConfigError{Field: "POLL_FETCH_DELAY_MS", Message: "must not be negative"}
	}
	if c.Timeline.FetchTimeoutSecs <= 0 {
		return &ConfigError{Field: "FETCH_TIMEOUT_SECONDS", Message: "must be positive"}
	}
	if _, err := c.Timeline.Location(); err != nil {
		return err
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
