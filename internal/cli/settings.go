package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/speakerfmt/internal/chunk"
	"github.com/alnah/speakerfmt/internal/config"
	"github.com/alnah/speakerfmt/internal/formatter"
	"github.com/alnah/speakerfmt/internal/pipeline"
	"github.com/alnah/speakerfmt/internal/prompt"
)

// Environment variables.
const (
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvModel         = "SPEAKERFMT_MODEL"
	EnvMaxRetries    = "SPEAKERFMT_MAX_RETRIES"
	EnvConfig        = "SPEAKERFMT_CONFIG"
)

// DefaultPace spaces consecutive API calls.
const DefaultPace = 2 * time.Second

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Flag names. Underscores match the historical command line.
const (
	flagAPIKey      = "api_key"
	flagModel       = "model"
	flagMaxRetries  = "max_retries"
	flagChunkSize   = "chunk_size"
	flagTimeout     = "timeout"
	flagPace        = "pace"
	flagParallel    = "parallel"
	flagTemperature = "temperature"
	flagSpeakers    = "speakers"
	flagBaseURL     = "base_url"
	flagConfig      = "config"
	flagForce       = "force"
	flagLogFormat   = "log_format"
	flagVerbose     = "verbose"
)

// formatFlags holds raw flag values as parsed by cobra.
type formatFlags struct {
	apiKey      string
	model       string
	maxRetries  int
	chunkSize   int
	timeout     time.Duration
	pace        time.Duration
	parallel    int
	temperature float64
	speakers    string
	baseURL     string
	configPath  string
	force       bool
	logFormat   string
	verbose     bool
}

// settings is the effective configuration of one run.
type settings struct {
	apiKey      string
	model       string
	maxRetries  int
	chunkSize   int
	timeout     time.Duration
	pace        time.Duration
	parallel    int
	temperature float64
	speakers    []string
	baseURL     string
	force       bool
	logFormat   string
	verbose     bool
}

func defaultSettings() settings {
	return settings{
		model:       prompt.DefaultModel,
		maxRetries:  formatter.DefaultMaxRetries,
		chunkSize:   chunk.DefaultMaxChars,
		timeout:     formatter.DefaultTimeout,
		pace:        DefaultPace,
		parallel:    pipeline.DefaultParallel,
		temperature: prompt.DefaultTemperature,
		logFormat:   LogFormatText,
	}
}

// registerFormatFlags binds f to cmd's flags with built-in defaults.
func registerFormatFlags(cmd *cobra.Command, f *formatFlags) {
	d := defaultSettings()
	fs := cmd.Flags()
	fs.StringVar(&f.apiKey, flagAPIKey, "", "OpenAI API key (default: $"+EnvOpenAIAPIKey+")")
	fs.StringVar(&f.model, flagModel, d.model, "Chat model")
	fs.IntVar(&f.maxRetries, flagMaxRetries, d.maxRetries, "Attempts per chunk before giving up")
	fs.IntVar(&f.chunkSize, flagChunkSize, d.chunkSize, "Maximum characters per chunk")
	fs.DurationVar(&f.timeout, flagTimeout, d.timeout, "Timeout for a single API call")
	fs.DurationVar(&f.pace, flagPace, d.pace, "Minimum delay between API calls (0 disables)")
	fs.IntVar(&f.parallel, flagParallel, d.parallel, fmt.Sprintf("Chunks formatted concurrently (1-%d)", pipeline.MaxParallel))
	fs.Float64Var(&f.temperature, flagTemperature, d.temperature, "Sampling temperature (0-2)")
	fs.StringVar(&f.speakers, flagSpeakers, "", `Known participants, comma-separated (e.g. "Alice,Bob")`)
	fs.StringVar(&f.baseURL, flagBaseURL, "", "OpenAI-compatible API base URL (default: $"+EnvOpenAIBaseURL+")")
	fs.BoolVar(&f.force, flagForce, false, "Overwrite the output file if it exists")
	fs.StringVar(&f.logFormat, flagLogFormat, d.logFormat, "Log format: text, json")
	fs.BoolVarP(&f.verbose, flagVerbose, "v", false, "Show every API attempt")
}

// resolveSettings merges built-in defaults, the config file, the environment
// and explicitly set flags, in increasing order of precedence.
// Validation order: values -> model -> API key.
func resolveSettings(cmd *cobra.Command, env *Env, f formatFlags, cfg config.Config) (settings, error) {
	s := defaultSettings()
	s.force = f.force
	s.logFormat = f.logFormat
	s.verbose = f.verbose

	// 1. Config file
	if cfg.Model != "" {
		s.model = cfg.Model
	}
	if cfg.MaxRetries != 0 {
		s.maxRetries = cfg.MaxRetries
	}
	if cfg.ChunkSize != 0 {
		s.chunkSize = cfg.ChunkSize
	}
	if cfg.Timeout != 0 {
		s.timeout = cfg.Timeout
	}
	if cfg.Pace != nil {
		s.pace = *cfg.Pace
	}
	if cfg.Parallel != 0 {
		s.parallel = cfg.Parallel
	}
	if cfg.Temperature != nil {
		s.temperature = *cfg.Temperature
	}
	if cfg.BaseURL != "" {
		s.baseURL = cfg.BaseURL
	}
	if len(cfg.Speakers) > 0 {
		s.speakers = cfg.Speakers
	}

	// 2. Environment
	if v := env.Getenv(EnvModel); v != "" {
		s.model = v
	}
	if v := env.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return s, fmt.Errorf("%s=%q is not a number: %w", EnvMaxRetries, v, ErrInvalidSetting)
		}
		s.maxRetries = n
	}
	if v := env.Getenv(EnvOpenAIBaseURL); v != "" {
		s.baseURL = v
	}
	s.apiKey = env.Getenv(EnvOpenAIAPIKey)

	// 3. Flags
	changed := cmd.Flags().Changed
	if changed(flagModel) {
		s.model = f.model
	}
	if changed(flagMaxRetries) {
		s.maxRetries = f.maxRetries
	}
	if changed(flagChunkSize) {
		s.chunkSize = f.chunkSize
	}
	if changed(flagTimeout) {
		s.timeout = f.timeout
	}
	if changed(flagPace) {
		s.pace = f.pace
	}
	if changed(flagParallel) {
		s.parallel = f.parallel
	}
	if changed(flagTemperature) {
		s.temperature = f.temperature
	}
	if changed(flagSpeakers) {
		s.speakers = config.SplitList(f.speakers)
	}
	if changed(flagBaseURL) {
		s.baseURL = f.baseURL
	}
	if changed(flagAPIKey) {
		s.apiKey = f.apiKey
	}

	if err := s.validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *settings) validate() error {
	s.model = strings.TrimSpace(s.model)
	s.apiKey = strings.TrimSpace(s.apiKey)

	switch {
	case s.maxRetries < 1:
		return fmt.Errorf("--%s must be >= 1, got %d: %w", flagMaxRetries, s.maxRetries, ErrInvalidSetting)
	case s.chunkSize < 1:
		return fmt.Errorf("--%s must be >= 1, got %d: %w", flagChunkSize, s.chunkSize, ErrInvalidSetting)
	case s.timeout <= 0:
		return fmt.Errorf("--%s must be positive, got %v: %w", flagTimeout, s.timeout, ErrInvalidSetting)
	case s.pace < 0:
		return fmt.Errorf("--%s must be >= 0, got %v: %w", flagPace, s.pace, ErrInvalidSetting)
	case s.parallel < 1 || s.parallel > pipeline.MaxParallel:
		return fmt.Errorf("--%s must be between 1 and %d, got %d: %w", flagParallel, pipeline.MaxParallel, s.parallel, ErrInvalidSetting)
	case s.temperature < 0 || s.temperature > 2:
		return fmt.Errorf("--%s must be between 0 and 2, got %g: %w", flagTemperature, s.temperature, ErrInvalidSetting)
	case s.logFormat != LogFormatText && s.logFormat != LogFormatJSON:
		return fmt.Errorf("--%s must be %s or %s, got %q: %w", flagLogFormat, LogFormatText, LogFormatJSON, s.logFormat, ErrInvalidSetting)
	}

	if s.baseURL != "" {
		if err := config.ValidBaseURL(s.baseURL); err != nil {
			return fmt.Errorf("--%s: %v: %w", flagBaseURL, err, ErrInvalidSetting)
		}
	}

	if s.model == "" || strings.ContainsAny(s.model, " \t\r\n") {
		return fmt.Errorf("%q: %w", s.model, ErrInvalidModel)
	}

	if s.apiKey == "" {
		return fmt.Errorf("%w (use --%s or set it with: export %s=sk-...)", ErrAPIKeyMissing, flagAPIKey, EnvOpenAIAPIKey)
	}
	return nil
}
