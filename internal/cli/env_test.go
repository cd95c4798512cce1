package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Tests for DefaultEnv
// ---------------------------------------------------------------------------

func TestDefaultEnvReturnsValidEnv(t *testing.T) {
	t.Parallel()

	env := DefaultEnv()

	if env == nil {
		t.Fatal("DefaultEnv() returned nil")
	}
	if env.Stdout != os.Stdout {
		t.Errorf("DefaultEnv() Stdout = %v, want os.Stdout", env.Stdout)
	}
	if env.Stderr != os.Stderr {
		t.Errorf("DefaultEnv() Stderr = %v, want os.Stderr", env.Stderr)
	}
	if env.Getenv == nil {
		t.Error("DefaultEnv() Getenv = nil, want non-nil")
	}
	if env.Now == nil {
		t.Error("DefaultEnv() Now = nil, want non-nil")
	}
	if env.ConfigLoader == nil {
		t.Error("DefaultEnv() ConfigLoader = nil, want non-nil")
	}
	if env.FormatterFactory == nil {
		t.Error("DefaultEnv() FormatterFactory = nil, want non-nil")
	}
	if env.Interrupts != nil {
		t.Error("DefaultEnv() Interrupts should be nil until main installs a handler")
	}
}

// ---------------------------------------------------------------------------
// Tests for NewEnv and options
// ---------------------------------------------------------------------------

func TestNewEnvAppliesOptions(t *testing.T) {
	t.Parallel()

	stdout := &syncBuffer{}
	stderr := &syncBuffer{}
	loader := &mockConfigLoader{}
	factory := &mockFormatterFactory{}
	decider := &mockDecider{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	env := NewEnv(
		WithStdout(stdout),
		WithStderr(stderr),
		WithGetenv(staticEnv(map[string]string{"K": "v"})),
		WithNow(fixedTime(now)),
		WithConfigLoader(loader),
		WithFormatterFactory(factory),
		WithInterrupts(decider),
	)

	if env.Stdout != stdout {
		t.Error("WithStdout not applied")
	}
	if env.Stderr != stderr {
		t.Error("WithStderr not applied")
	}
	if env.Getenv("K") != "v" {
		t.Error("WithGetenv not applied")
	}
	if !env.Now().Equal(now) {
		t.Error("WithNow not applied")
	}
	if env.ConfigLoader != loader {
		t.Error("WithConfigLoader not applied")
	}
	if env.FormatterFactory != factory {
		t.Error("WithFormatterFactory not applied")
	}
	if env.Interrupts != decider {
		t.Error("WithInterrupts not applied")
	}
}

func TestDefaultConfigLoader_UsesInjectedGetenv(t *testing.T) {
	t.Parallel()

	xdg := t.TempDir()
	env := NewEnv(WithGetenv(staticEnv(map[string]string{"XDG_CONFIG_HOME": xdg})))

	p, err := env.ConfigLoader.DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() unexpected error: %v", err)
	}
	if want := filepath.Join(xdg, "speakerfmt", "config.yaml"); p != want {
		t.Errorf("DefaultPath() = %q, want %q", p, want)
	}

	cfg, err := env.ConfigLoader.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") unexpected error: %v", err)
	}
	if cfg.Model != "" {
		t.Errorf("Load(\"\") = %+v, want empty config", cfg)
	}
}

func TestDefaultFormatterFactory_BuildsClient(t *testing.T) {
	t.Parallel()

	f := defaultFormatterFactory{}.NewFormatter(FormatterSettings{
		APIKey:     "sk-test",
		BaseURL:    "http://localhost:11434/v1",
		MaxRetries: 3,
		Timeout:    time.Second,
	})
	if f == nil {
		t.Fatal("NewFormatter() returned nil")
	}
}
