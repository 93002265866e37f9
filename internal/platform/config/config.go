package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StreamNamePlaceholder is the token in the playback URL template that is
// replaced with the derived stream key.
const StreamNamePlaceholder = "{stream_name}"

// Defaults applied when the configuration file leaves a field unset.
const (
	DefaultIdleThreshold  = 60 * time.Second
	DefaultReaperInterval = 15 * time.Second
	DefaultFFmpegPath     = "ffmpeg"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// StreamConfig is one entry of the preconfigured stream catalog.
type StreamConfig struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// ServerConfig holds the HTTP listener options.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SRSConfig points at the media origin.
type SRSConfig struct {
	APIURL              string `yaml:"api_url"`
	PlaybackURLTemplate string `yaml:"playback_url_template"`
}

// TranscoderConfig holds child process options.
type TranscoderConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// SessionConfig holds the idle eviction tuning knobs.
type SessionConfig struct {
	IdleThreshold  time.Duration `yaml:"idle_threshold"`
	ReaperInterval time.Duration `yaml:"reaper_interval"`
}

// UnmarshalYAML accepts Go duration strings ("90s", "2m") for the session
// knobs. Empty or absent fields are left zero so defaults apply.
func (s *SessionConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		IdleThreshold  string `yaml:"idle_threshold"`
		ReaperInterval string `yaml:"reaper_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.IdleThreshold != "" {
		d, err := time.ParseDuration(raw.IdleThreshold)
		if err != nil {
			return fmt.Errorf("session.idle_threshold: %w", err)
		}
		s.IdleThreshold = d
	}
	if raw.ReaperInterval != "" {
		d, err := time.ParseDuration(raw.ReaperInterval)
		if err != nil {
			return fmt.Errorf("session.reaper_interval: %w", err)
		}
		s.ReaperInterval = d
	}
	return nil
}

// AppConfig is the process-wide broker configuration, read-only after load.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	SRS        SRSConfig        `yaml:"srs"`
	Transcoder TranscoderConfig `yaml:"transcoder"`
	Session    SessionConfig    `yaml:"session"`
	Streams    []StreamConfig   `yaml:"streams"`
	APIKeys    []string         `yaml:"api_keys"`
}

// LoadFile parses the YAML configuration at path, applies defaults, and
// validates it. Any error is fatal for the caller: the broker cannot run with
// a broken origin URL or playback template.
func LoadFile(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Transcoder.FFmpegPath == "" {
		c.Transcoder.FFmpegPath = DefaultFFmpegPath
	}
	if c.Session.IdleThreshold <= 0 {
		c.Session.IdleThreshold = DefaultIdleThreshold
	}
	if c.Session.ReaperInterval <= 0 {
		c.Session.ReaperInterval = DefaultReaperInterval
	}
}

// Validate checks the invariants the rest of the broker relies on.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	u, err := url.Parse(c.SRS.APIURL)
	if err != nil {
		return fmt.Errorf("srs.api_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("srs.api_url %q must include scheme and host", c.SRS.APIURL)
	}
	if !strings.Contains(c.SRS.PlaybackURLTemplate, StreamNamePlaceholder) {
		return fmt.Errorf("srs.playback_url_template must contain %s", StreamNamePlaceholder)
	}
	seen := make(map[string]struct{}, len(c.Streams))
	for i, s := range c.Streams {
		if s.Name == "" {
			return fmt.Errorf("streams[%d]: name is empty", i)
		}
		if !strings.HasPrefix(strings.ToLower(s.URL), "rtsp://") {
			return fmt.Errorf("streams[%d] %q: url %q is not an rtsp:// url", i, s.Name, s.URL)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("streams[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// OriginHost returns the host component (without port) of srs.api_url.
// The RTMP push target reuses the origin host at port 1935.
func (c *AppConfig) OriginHost() string {
	u, err := url.Parse(c.SRS.APIURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// LookupStream returns the configured RTSP URL for a display name.
func (c *AppConfig) LookupStream(name string) (string, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return s.URL, true
		}
	}
	return "", false
}
