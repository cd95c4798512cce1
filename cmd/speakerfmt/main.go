package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/alnah/speakerfmt/internal/apierr"
	"github.com/alnah/speakerfmt/internal/cli"
	"github.com/alnah/speakerfmt/internal/config"
	"github.com/alnah/speakerfmt/internal/interrupt"
	"github.com/alnah/speakerfmt/internal/pipeline"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitGeneral   = 1
	ExitUsage     = 2
	ExitSetup     = 3
	ExitFile      = 4
	ExitFormat    = 5
	ExitInterrupt = interrupt.ExitCode
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// First Ctrl+C cancels ctx; a second one within the window aborts.
	handler, ctx := interrupt.NewHandler(context.Background())
	defer handler.Stop()

	env := cli.DefaultEnv()
	env.Interrupts = handler

	rootCmd := cli.RootCmd(env)
	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code := interruptedExitCode(err, handler.Interrupted())
		if code != ExitInterrupt {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		handler.Stop()
		os.Exit(code)
	}
}

// interruptedExitCode reports ExitInterrupt for any failure after Ctrl+C, even
// one that surfaced as a different error while the run was shutting down.
func interruptedExitCode(err error, interrupted bool) int {
	if err != nil && interrupted {
		return ExitInterrupt
	}
	return exitCode(err)
}

// exitCode maps errors to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Check for context cancellation (interrupt).
	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Setup errors: credentials, settings, config file.
	if errors.Is(err, cli.ErrAPIKeyMissing) || errors.Is(err, cli.ErrInvalidModel) ||
		errors.Is(err, cli.ErrInvalidSetting) || errors.Is(err, config.ErrInvalid) {
		return ExitSetup
	}

	// File errors.
	if errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, cli.ErrOutputExists) ||
		errors.Is(err, cli.ErrFileIO) {
		return ExitFile
	}

	// Formatting errors: a chunk failed for good.
	var chunkErr *pipeline.ChunkError
	if errors.As(err, &chunkErr) || isAPIError(err) {
		return ExitFormat
	}

	// Cobra doesn't expose typed errors, so we check for known error message
	// patterns. Checked last: API messages may contain the same phrases.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	return ExitGeneral
}

// apiSentinels are the failure classes reported by the formatter.
var apiSentinels = []error{
	apierr.ErrRateLimit, apierr.ErrTransient, apierr.ErrQuotaExceeded, apierr.ErrAuthFailed,
	apierr.ErrBadRequest, apierr.ErrContentPolicy, apierr.ErrTruncated,
}

func isAPIError(err error) bool {
	for _, sentinel := range apiSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// These patterns are stable across Cobra versions (tested with v1.8+).
var cobraUsageErrorPatterns = []string{
	"required flag",          // Missing required flag
	"unknown flag",           // Flag doesn't exist
	"unknown shorthand",      // Short flag doesn't exist
	"unknown command",        // Subcommand doesn't exist
	"flag needs an argument", // Flag provided without value
	"invalid argument",       // Invalid flag value type
	"accepts ",               // Wrong number of arguments (e.g., "accepts 2 arg(s)")
	"requires at least",      // Too few arguments
	"requires at most",       // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
