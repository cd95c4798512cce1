package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	configLoader *mockConfigLoader
	factory      *mockFormatterFactory
	formatter    *mockFormatter
	stdout       *syncBuffer
	stderr       *syncBuffer
}

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

type testEnvOptions struct {
	getenv func(string) string
	config *mockConfigLoader
	format *mockFormatter
}

type testEnvOption func(*testEnvOptions)

func withTestGetenv(fn func(string) string) testEnvOption {
	return func(o *testEnvOptions) { o.getenv = fn }
}

func withTestConfig(l *mockConfigLoader) testEnvOption {
	return func(o *testEnvOptions) { o.config = l }
}

func withTestFormatter(f *mockFormatter) testEnvOption {
	return func(o *testEnvOptions) { o.format = f }
}

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env and the mocks for assertions.
func testEnv(opts ...testEnvOption) (*Env, *testMocks) {
	options := &testEnvOptions{
		getenv: defaultTestEnv,
		config: &mockConfigLoader{},
		format: &mockFormatter{},
	}
	for _, opt := range opts {
		opt(options)
	}

	mocks := &testMocks{
		configLoader: options.config,
		factory:      &mockFormatterFactory{formatter: options.format},
		formatter:    options.format,
		stdout:       &syncBuffer{},
		stderr:       &syncBuffer{},
	}

	env := &Env{
		Stdout:           mocks.stdout,
		Stderr:           mocks.stderr,
		Getenv:           options.getenv,
		Now:              fixedTime(time.Date(2026, 1, 26, 14, 30, 52, 0, time.UTC)),
		ConfigLoader:     mocks.configLoader,
		FormatterFactory: mocks.factory,
	}
	return env, mocks
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fixedTime returns a function that always returns the given time.
func fixedTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// staticEnv returns a getenv function that returns values from the given map.
func staticEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

// defaultTestEnv provides only the OpenAI API key.
func defaultTestEnv(key string) string {
	if key == EnvOpenAIAPIKey {
		return "test-openai-key"
	}
	return ""
}

// twoParts splits into exactly two chunks with --chunk_size 14.
const twoParts = "Part one.\n\nPart two."

// writeInput creates a transcript file and returns its path and a sibling output path.
func writeInput(t *testing.T, content string) (input, output string) {
	t.Helper()
	dir := t.TempDir()
	input = filepath.Join(dir, "raw.txt")
	if err := os.WriteFile(input, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return input, filepath.Join(dir, "formatted.txt")
}

// execute runs the root command with args.
func execute(ctx context.Context, env *Env, args ...string) error {
	cmd := RootCmd(env)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(ctx)
}

// readFile returns the content of path or fails the test.
func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// assertNoFile fails the test if path exists.
func assertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("%s should not exist", path)
	}
}
