package cli

import (
	"context"
	"sync"

	"github.com/alnah/speakerfmt/internal/apierr"
	"github.com/alnah/speakerfmt/internal/config"
	"github.com/alnah/speakerfmt/internal/formatter"
	"github.com/alnah/speakerfmt/internal/interrupt"
	"github.com/alnah/speakerfmt/internal/pipeline"
	"github.com/alnah/speakerfmt/internal/prompt"
)

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func(path string) (config.Config, error)
	SaveFunc func(path string, cfg config.Config) error

	mu        sync.Mutex
	loadPaths []string
	saved     map[string]config.Config
}

func (m *mockConfigLoader) Load(path string) (config.Config, error) {
	m.mu.Lock()
	m.loadPaths = append(m.loadPaths, path)
	key := path
	if key == "" {
		key, _ = m.DefaultPath()
	}
	saved, ok := m.saved[key]
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(path)
	}
	if ok {
		return saved, nil
	}
	return config.Config{}, nil
}

func (m *mockConfigLoader) Save(path string, cfg config.Config) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(path, cfg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string]config.Config)
	}
	m.saved[path] = cfg
	return nil
}

const mockDefaultConfigPath = "/home/test/.config/speakerfmt/config.yaml"

func (m *mockConfigLoader) DefaultPath() (string, error) {
	return mockDefaultConfigPath, nil
}

func (m *mockConfigLoader) LoadPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadPaths...)
}

func (m *mockConfigLoader) Saved(path string) (config.Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.saved[path]
	return cfg, ok
}

// ---------------------------------------------------------------------------
// Mock FormatterFactory + Formatter
// ---------------------------------------------------------------------------

type mockFormatterFactory struct {
	formatter *mockFormatter

	mu       sync.Mutex
	settings []FormatterSettings
}

func (m *mockFormatterFactory) NewFormatter(s FormatterSettings) pipeline.Formatter {
	m.mu.Lock()
	m.settings = append(m.settings, s)
	m.mu.Unlock()

	if m.formatter == nil {
		m.formatter = &mockFormatter{}
	}
	return m.formatter
}

func (m *mockFormatterFactory) Calls() []FormatterSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FormatterSettings(nil), m.settings...)
}

// mockFormatter prefixes each chunk with "F:" unless FormatFunc overrides it.
type mockFormatter struct {
	FormatFunc func(ctx context.Context, req prompt.Request) (formatter.Result, bool)

	mu       sync.Mutex
	requests []prompt.Request
}

func (m *mockFormatter) FormatChunk(ctx context.Context, req prompt.Request, total int) formatter.Result {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.FormatFunc != nil {
		if res, ok := m.FormatFunc(ctx, req); ok {
			return res
		}
	}
	return formatter.Result{ChunkIndex: req.Chunk.Index, Text: "F:" + req.Chunk.Text, Attempts: 1}
}

func (m *mockFormatter) Requests() []prompt.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]prompt.Request(nil), m.requests...)
}

// failAt returns a FormatFunc failing chunk index with a fatal auth error.
func failAt(index int) func(context.Context, prompt.Request) (formatter.Result, bool) {
	return func(_ context.Context, req prompt.Request) (formatter.Result, bool) {
		if req.Chunk.Index != index {
			return formatter.Result{}, false
		}
		return formatter.Result{
			ChunkIndex: index,
			Attempts:   1,
			Kind:       apierr.KindFatal,
			Err:        apierr.ErrAuthFailed,
		}, true
	}
}

// ---------------------------------------------------------------------------
// Mock Decider
// ---------------------------------------------------------------------------

type mockDecider struct {
	decision interrupt.Decision

	mu       sync.Mutex
	messages []string
}

func (m *mockDecider) Decide(message string) interrupt.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return m.decision
}

func (m *mockDecider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
