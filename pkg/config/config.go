package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration for a roomkeeper process
type Config struct {
	// AccountName prefixes every notification
	AccountName string `yaml:"account_name" json:"account_name"`

	Meeting  MeetingConfig  `yaml:"meeting" json:"meeting"`
	Presence PresenceConfig `yaml:"presence" json:"presence"`
	Claim    ClaimConfig    `yaml:"claim" json:"claim"`
	Notify   NotifyConfig   `yaml:"notify" json:"notify"`
	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`

	// ConfigFilePath is the file the config was loaded from, if any
	ConfigFilePath string `yaml:"-" json:"-"`
}

// MeetingConfig defines which rooms to join and how to reach them
type MeetingConfig struct {
	// URLTemplate must contain the {roomId} placeholder
	URLTemplate string   `yaml:"url_template" json:"url_template"`
	RoomIDs     []string `yaml:"room_ids" json:"room_ids"`
	CookieFile  string   `yaml:"cookie_file" json:"cookie_file"`
	// WatchCookies re-applies the cookie file to the running browser when it changes
	WatchCookies bool `yaml:"watch_cookies" json:"watch_cookies"`
}

// PresenceConfig defines the join loop delays and presence check period
type PresenceConfig struct {
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
	SettleDelay   time.Duration `yaml:"settle_delay" json:"settle_delay"`
	ClickDelay    time.Duration `yaml:"click_delay" json:"click_delay"`
	ConfirmDelay  time.Duration `yaml:"confirm_delay" json:"confirm_delay"`
	RenderDelay   time.Duration `yaml:"render_delay" json:"render_delay"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// MaxRetryDelay enables exponential backoff when greater than RetryDelay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	UnlockAsHost  bool          `yaml:"unlock_as_host" json:"unlock_as_host"`
}

// ClaimConfig defines the scheduled quest claim workflow
type ClaimConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	TickInterval  time.Duration `yaml:"tick_interval" json:"tick_interval"`
	ClaimInterval time.Duration `yaml:"claim_interval" json:"claim_interval"`
	APIBaseURL    string        `yaml:"api_base_url" json:"api_base_url"`
	RPCURL        string        `yaml:"rpc_url" json:"rpc_url"`
	PrivateKey    string        `yaml:"private_key" json:"-"`
	Domain        string        `yaml:"domain" json:"domain"`
	URI           string        `yaml:"uri" json:"uri"`
	ChainID       int64         `yaml:"chain_id" json:"chain_id"`
	QuestKey      string        `yaml:"quest_key" json:"quest_key"`
	// StatePath is a SQLite file for claim state; empty keeps state in memory
	StatePath string `yaml:"state_path" json:"state_path"`
}

// NotifyConfig defines the Telegram notification channel
type NotifyConfig struct {
	TelegramToken string        `yaml:"telegram_token" json:"-"`
	ChatID        string        `yaml:"chat_id" json:"chat_id"`
	APIBaseURL    string        `yaml:"api_base_url" json:"api_base_url"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// BrowserConfig defines how the page automation driver is launched
type BrowserConfig struct {
	// Engine selects the driver: playwright or rod
	Engine            string        `yaml:"engine" json:"engine"`
	Headless          bool          `yaml:"headless" json:"headless"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	ViewportWidth     int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height" json:"viewport_height"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

const (
	// RoomIDPlaceholder is substituted with the room id in Meeting.URLTemplate
	RoomIDPlaceholder = "{roomId}"

	EngineRod        = "rod"
	EnginePlaywright = "playwright"
)

// DefaultConfig returns the default configuration for a single huddle01 account
func DefaultConfig() *Config {
	return &Config{
		AccountName: "Bot Meeting",
		Meeting: MeetingConfig{
			URLTemplate: "https://huddle01.app/room/{roomId}",
			CookieFile:  "cookie.json",
		},
		Presence: PresenceConfig{
			CheckInterval: time.Minute,
			SettleDelay:   10 * time.Second,
			ClickDelay:    3 * time.Second,
			ConfirmDelay:  10 * time.Second,
			RenderDelay:   20 * time.Second,
			RetryDelay:    10 * time.Second,
			UnlockAsHost:  true,
		},
		Claim: ClaimConfig{
			Enabled:       true,
			TickInterval:  5 * time.Minute,
			ClaimInterval: time.Hour,
			Domain:        "testnet.huddle01.com",
			URI:           "https://testnet.huddle01.com",
			ChainID:       2524852,
			QuestKey:      "meet",
		},
		Notify: NotifyConfig{
			APIBaseURL: "https://api.telegram.org",
			Timeout:    10 * time.Second,
		},
		Browser: BrowserConfig{
			Engine:            EnginePlaywright,
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
			ViewportWidth:     1280,
			ViewportHeight:    720,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads a YAML file over DefaultConfig. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ConfigFilePath = path
	return cfg, nil
}

// ApplyEnv fills secrets and endpoints from the environment. Environment
// values win over the file; CLI flags are applied by the caller afterwards.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		c.Notify.TelegramToken = v
	}
	if v := getenv("CHAT_ID"); v != "" {
		c.Notify.ChatID = v
	}
	if v := getenv("WEB3_PRIVATE_KEY"); v != "" {
		c.Claim.PrivateKey = v
	}
	if v := getenv("WEB3_API_BASE_URL"); v != "" {
		c.Claim.APIBaseURL = v
	}
	if v := getenv("WEB3_RPC_URL"); v != "" {
		c.Claim.RPCURL = v
	}
	if v := getenv("ROOM_IDS"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			c.Meeting.RoomIDs = ids
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Meeting.RoomIDs) == 0 {
		return fmt.Errorf("meeting.room_ids must contain at least one room")
	}
	for i, id := range c.Meeting.RoomIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("meeting.room_ids[%d] is empty", i)
		}
	}

	if strings.Count(c.Meeting.URLTemplate, RoomIDPlaceholder) != 1 {
		return fmt.Errorf("meeting.url_template must contain %s exactly once", RoomIDPlaceholder)
	}

	if c.Presence.CheckInterval <= 0 {
		return fmt.Errorf("presence.check_interval must be positive")
	}
	if c.Presence.RetryDelay < 0 || c.Presence.MaxRetryDelay < 0 {
		return fmt.Errorf("presence retry delays cannot be negative")
	}
	if c.Presence.SettleDelay < 0 || c.Presence.ClickDelay < 0 ||
		c.Presence.ConfirmDelay < 0 || c.Presence.RenderDelay < 0 {
		return fmt.Errorf("presence settle delays cannot be negative")
	}

	if c.Claim.Enabled {
		if c.Claim.TickInterval <= 0 || c.Claim.ClaimInterval <= 0 {
			return fmt.Errorf("claim.tick_interval and claim.claim_interval must be positive")
		}
		if c.Claim.TickInterval >= c.Claim.ClaimInterval {
			return fmt.Errorf("claim.tick_interval (%v) must be shorter than claim.claim_interval (%v)",
				c.Claim.TickInterval, c.Claim.ClaimInterval)
		}
		if c.Claim.QuestKey == "" {
			return fmt.Errorf("claim.quest_key is required")
		}
	}

	switch c.Browser.Engine {
	case EnginePlaywright, EngineRod:
	default:
		return fmt.Errorf("invalid browser.engine: %s (must be 'playwright' or 'rod')", c.Browser.Engine)
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// ClaimReady reports whether the claim workflow has the credentials it needs.
func (c *Config) ClaimReady() bool {
	return c.Claim.Enabled && c.Claim.PrivateKey != "" && c.Claim.APIBaseURL != ""
}

// MeetingURL builds the endpoint for a room id
func (c *Config) MeetingURL(roomID string) string {
	return strings.Replace(c.Meeting.URLTemplate, RoomIDPlaceholder, roomID, 1)
}
