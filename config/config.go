// Package config loads the bridge configuration from an optional YAML file,
// a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultPort      = 9000
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultAgentID   = "dify"

	// SCFBasePath is the route prefix used inside Tencent Cloud SCF.
	SCFBasePath = "/v1/aibot/bots"
)

// ErrNoAgents is returned when no agent is configured and DIFY_API_KEY is unset.
var ErrNoAgents = errors.New("config: no agents configured (set DIFY_API_KEY or add agents to the config file)")

// Config is the complete bridge configuration.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Agents []AgentConfig `yaml:"agents"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	BasePath   string `yaml:"base_path"`
	LogLevel   string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat  string `yaml:"log_format"` // text or json
	UserHeader string `yaml:"user_header"`
	CORS       bool   `yaml:"cors"`
}

// AgentConfig describes one Dify application exposed by the bridge.
type AgentConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`

	// FixEventIDs defaults to true when unset.
	FixEventIDs *bool         `yaml:"fix_event_ids"`
	DebugMode   bool          `yaml:"debug_mode"`
	Timeout     time.Duration `yaml:"timeout"`
}

// FixIDs reports whether event id normalisation is enabled.
func (a AgentConfig) FixIDs() bool {
	return a.FixEventIDs == nil || *a.FixEventIDs
}

// Load builds the configuration. It loads a .env file if present, reads
// path when it is not empty, applies environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	godotenv.Load() // Load .env file if present

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Port = getEnvIntOrDefault("DIFYBRIDGE_PORT", s.Port)
	s.BasePath = getEnvOrDefault("DIFYBRIDGE_BASE_PATH", s.BasePath)
	s.LogLevel = getEnvOrDefault("DIFYBRIDGE_LOG_LEVEL", s.LogLevel)
	s.LogFormat = getEnvOrDefault("DIFYBRIDGE_LOG_FORMAT", s.LogFormat)
	s.UserHeader = getEnvOrDefault("DIFYBRIDGE_USER_HEADER", s.UserHeader)
	s.CORS = getEnvBoolOrDefault("DIFYBRIDGE_CORS", s.CORS)

	if len(c.Agents) == 0 {
		if key := os.Getenv("DIFY_API_KEY"); key != "" {
			c.Agents = append(c.Agents, AgentConfig{
				ID:     DefaultAgentID,
				Name:   "Dify",
				APIKey: key,
			})
		}
	}

	baseURL := os.Getenv("DIFY_API_BASE")
	debug := getEnvBoolOrDefault("DIFY_DEBUG", false)
	timeout := getEnvDurationOrDefault("DIFY_TIMEOUT", 0)
	var fix *bool
	if v, ok := lookupBool("DIFY_FIX_EVENT_IDS"); ok {
		fix = &v
	}

	for i := range c.Agents {
		a := &c.Agents[i]
		if a.BaseURL == "" {
			a.BaseURL = baseURL
		}
		if a.FixEventIDs == nil {
			a.FixEventIDs = fix
		}
		if a.Timeout == 0 {
			a.Timeout = timeout
		}
		a.DebugMode = a.DebugMode || debug
	}
}

func (c *Config) applyDefaults() {
	s := &c.Server
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.BasePath == "" && os.Getenv("TENCENTCLOUD_RUNENV") == "SCF" {
		s.BasePath = SCFBasePath
	}
	s.BasePath = strings.TrimRight(s.BasePath, "/")
	if s.BasePath != "" && !strings.HasPrefix(s.BasePath, "/") {
		s.BasePath = "/" + s.BasePath
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = DefaultLogFormat
	}
}

// Validate checks that the configuration can serve requests.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q (must be debug, info, warn, or error)", c.Server.LogLevel)
	}
	switch strings.ToLower(c.Server.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q (must be text or json)", c.Server.LogFormat)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}

	if len(c.Agents) == 0 {
		return ErrNoAgents
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("config: agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("config: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if a.APIKey == "" {
			return fmt.Errorf("config: agent %q: api_key is required", a.ID)
		}
		if a.Timeout < 0 {
			return fmt.Errorf("config: agent %q: timeout must not be negative", a.ID)
		}
	}
	return nil
}

// Agent returns the agent with the given id.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Plain numbers are seconds.
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, ok := lookupBool(key); ok {
		return b
	}
	return defaultValue
}

func lookupBool(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return b, true
}
