package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the config directory.
const FileName = "config.yaml"

// appDir is the directory name under the XDG config home.
const appDir = "speakerfmt"

// Config keys, as they appear in the YAML file.
const (
	KeyModel       = "model"
	KeyMaxRetries  = "max_retries"
	KeyChunkSize   = "chunk_size"
	KeyTimeout     = "timeout"
	KeyPace        = "pace"
	KeyParallel    = "parallel"
	KeyTemperature = "temperature"
	KeyBaseURL     = "base_url"
	KeySpeakers    = "speakers"
)

// Keys lists every supported key in file order.
var Keys = []string{
	KeyModel, KeyMaxRetries, KeyChunkSize, KeyTimeout, KeyPace,
	KeyParallel, KeyTemperature, KeyBaseURL, KeySpeakers,
}

// ErrInvalid indicates a malformed config file or an out-of-range value.
var ErrInvalid = errors.New("invalid config")

// Config holds user defaults loaded from ~/.config/speakerfmt/config.yaml.
// Zero values mean "not set"; pointer fields distinguish an explicit zero.
type Config struct {
	Model       string         `yaml:"model,omitempty"`
	MaxRetries  int            `yaml:"max_retries,omitempty"`
	ChunkSize   int            `yaml:"chunk_size,omitempty"`
	Timeout     time.Duration  `yaml:"timeout,omitempty"`
	Pace        *time.Duration `yaml:"pace,omitempty"`
	Parallel    int            `yaml:"parallel,omitempty"`
	Temperature *float64       `yaml:"temperature,omitempty"`
	BaseURL     string         `yaml:"base_url,omitempty"`
	Speakers    []string       `yaml:"speakers,omitempty,flow"`
}

// Dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/speakerfmt. Variables are
// read through getenv.
func Dir(getenv func(string) string) (string, error) {
	if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}

	home := getenv("HOME")
	if home == "" {
		home = getenv("USERPROFILE")
	}
	if home == "" {
		return "", errors.New("cannot determine home directory: neither HOME nor USERPROFILE is set")
	}
	return filepath.Join(home, ".config", appDir), nil
}

// DefaultPath returns the full path to the default config file.
func DefaultPath(getenv func(string) string) (string, error) {
	d, err := Dir(getenv)
	if err != nil {
		return "", err
	}
	return filepath.Join(d, FileName), nil
}

// Load reads the config file at path. A missing file is an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user config path
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return Parse(data)
}

// LoadDefault reads the default config file. A missing file yields an empty Config.
func LoadDefault(getenv func(string) string) (Config, error) {
	path, err := DefaultPath(getenv)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// Parse decodes and validates YAML config data. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("%s must be >= 0: %w", KeyMaxRetries, ErrInvalid)
	case c.ChunkSize < 0:
		return fmt.Errorf("%s must be >= 0: %w", KeyChunkSize, ErrInvalid)
	case c.Parallel < 0:
		return fmt.Errorf("%s must be >= 0: %w", KeyParallel, ErrInvalid)
	case c.Timeout < 0:
		return fmt.Errorf("%s must be >= 0: %w", KeyTimeout, ErrInvalid)
	case c.Pace != nil && *c.Pace < 0:
		return fmt.Errorf("%s must be >= 0: %w", KeyPace, ErrInvalid)
	case c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2):
		return fmt.Errorf("%s must be between 0 and 2: %w", KeyTemperature, ErrInvalid)
	case strings.ContainsFunc(c.Model, isSpace):
		return fmt.Errorf("%s %q contains whitespace: %w", KeyModel, c.Model, ErrInvalid)
	}
	if c.BaseURL != "" {
		if err := ValidBaseURL(c.BaseURL); err != nil {
			return err
		}
	}
	return nil
}

// ValidBaseURL checks that u is an absolute http(s) URL.
func ValidBaseURL(u string) error {
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s %q must be an http(s) URL: %w", KeyBaseURL, u, ErrInvalid)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Save writes cfg to path, creating the config directory if needed.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	// #nosec G306 -- config file with standard permissions
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	return nil
}

// IsValidKey reports whether key is a supported config key.
func IsValidKey(key string) bool {
	return slices.Contains(Keys, key)
}

// Set parses value and assigns it to key. The result is validated.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	next := *c

	var err error
	switch key {
	case KeyModel:
		next.Model = value
	case KeyMaxRetries:
		next.MaxRetries, err = strconv.Atoi(value)
	case KeyChunkSize:
		next.ChunkSize, err = strconv.Atoi(value)
	case KeyParallel:
		next.Parallel, err = strconv.Atoi(value)
	case KeyTimeout:
		next.Timeout, err = time.ParseDuration(value)
	case KeyPace:
		var d time.Duration
		d, err = time.ParseDuration(value)
		next.Pace = &d
	case KeyTemperature:
		var t float64
		t, err = strconv.ParseFloat(value, 64)
		next.Temperature = &t
	case KeyBaseURL:
		next.BaseURL = value
	case KeySpeakers:
		next.Speakers = SplitList(value)
	default:
		return fmt.Errorf("unknown config key %q (valid keys: %s): %w", key, strings.Join(Keys, ", "), ErrInvalid)
	}
	if err != nil {
		return fmt.Errorf("%s: cannot parse %q: %w", key, value, ErrInvalid)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	*c = next
	return nil
}

// Get returns the value of key formatted as it would be typed on the command
// line, or "" when unset.
func (c Config) Get(key string) (string, error) {
	switch key {
	case KeyModel:
		return c.Model, nil
	case KeyMaxRetries:
		return itoaOrEmpty(c.MaxRetries), nil
	case KeyChunkSize:
		return itoaOrEmpty(c.ChunkSize), nil
	case KeyParallel:
		return itoaOrEmpty(c.Parallel), nil
	case KeyTimeout:
		if c.Timeout == 0 {
			return "", nil
		}
		return c.Timeout.String(), nil
	case KeyPace:
		if c.Pace == nil {
			return "", nil
		}
		return c.Pace.String(), nil
	case KeyTemperature:
		if c.Temperature == nil {
			return "", nil
		}
		return strconv.FormatFloat(*c.Temperature, 'g', -1, 64), nil
	case KeyBaseURL:
		return c.BaseURL, nil
	case KeySpeakers:
		return strings.Join(c.Speakers, ","), nil
	default:
		return "", fmt.Errorf("unknown config key %q (valid keys: %s): %w", key, strings.Join(Keys, ", "), ErrInvalid)
	}
}

func itoaOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// SplitList splits a comma-separated list, trimming blanks and dropping empty items.
func SplitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
