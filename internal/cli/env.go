package cli

import (
	"io"
	"os"
	"time"

	"github.com/alnah/speakerfmt/internal/config"
	"github.com/alnah/speakerfmt/internal/formatter"
	"github.com/alnah/speakerfmt/internal/interrupt"
	"github.com/alnah/speakerfmt/internal/pipeline"
	"github.com/alnah/speakerfmt/internal/report"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	ConfigLoader     ConfigLoader
	FormatterFactory FormatterFactory

	// Interrupts decides what happens to partial output after Ctrl+C.
	// Nil keeps partial output.
	Interrupts Decider
}

// ConfigLoader reads and writes the YAML config file.
type ConfigLoader interface {
	// Load reads path, or the default file when path is empty.
	Load(path string) (config.Config, error)
	Save(path string, cfg config.Config) error
	DefaultPath() (string, error)
}

// FormatterSettings is everything needed to build a chunk formatter.
type FormatterSettings struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
	Pace       time.Duration
	Reporter   report.Reporter
}

// FormatterFactory creates chunk formatters.
type FormatterFactory interface {
	NewFormatter(s FormatterSettings) pipeline.Formatter
}

// Decider is satisfied by *interrupt.Handler.
type Decider interface {
	Decide(message string) interrupt.Decision
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithFormatterFactory sets the formatter factory.
func WithFormatterFactory(f FormatterFactory) EnvOption {
	return func(e *Env) {
		e.FormatterFactory = f
	}
}

// WithInterrupts sets the interrupt decider.
func WithInterrupts(d Decider) EnvOption {
	return func(e *Env) {
		e.Interrupts = d
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	env := &Env{
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
		Getenv:           os.Getenv,
		Now:              time.Now,
		FormatterFactory: &defaultFormatterFactory{},
	}
	// The loader reads env.Getenv at call time so WithGetenv applies to it.
	env.ConfigLoader = &defaultConfigLoader{getenv: func(key string) string { return env.Getenv(key) }}
	return env
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct {
	getenv func(string) string
}

func (l defaultConfigLoader) Load(path string) (config.Config, error) {
	if path == "" {
		return config.LoadDefault(l.getenv)
	}
	return config.Load(path)
}

func (defaultConfigLoader) Save(path string, cfg config.Config) error {
	return config.Save(path, cfg)
}

func (l defaultConfigLoader) DefaultPath() (string, error) {
	return config.DefaultPath(l.getenv)
}

// defaultFormatterFactory implements FormatterFactory using the OpenAI client.
type defaultFormatterFactory struct{}

func (defaultFormatterFactory) NewFormatter(s FormatterSettings) pipeline.Formatter {
	opts := []formatter.Option{
		formatter.WithMaxRetries(s.MaxRetries),
		formatter.WithTimeout(s.Timeout),
		formatter.WithPace(s.Pace),
		formatter.WithReporter(s.Reporter),
	}
	if s.BaseURL != "" {
		opts = append(opts, formatter.WithBaseURL(s.BaseURL))
	}
	return formatter.New(s.APIKey, opts...)
}

// Compile-time interface verification.
var (
	_ ConfigLoader     = (*defaultConfigLoader)(nil)
	_ FormatterFactory = (*defaultFormatterFactory)(nil)
	_ Decider          = (*interrupt.Handler)(nil)
)
