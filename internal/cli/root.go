package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/alnah/speakerfmt/internal/format"
	"github.com/alnah/speakerfmt/internal/interrupt"
	"github.com/alnah/speakerfmt/internal/pipeline"
	"github.com/alnah/speakerfmt/internal/prompt"
	"github.com/alnah/speakerfmt/internal/report"
)

// RootCmd creates the speakerfmt command. The config subcommand is attached.
// The env parameter provides injectable dependencies for testing.
func RootCmd(env *Env) *cobra.Command {
	var f formatFlags

	cmd := &cobra.Command{
		Use:   "speakerfmt <input_file> <output_file>",
		Short: "Format raw transcripts into speaker-labeled text",
		Long: `Format a raw conversation transcript into readable, speaker-labeled text.

The transcript is split into chunks at paragraph or sentence boundaries. Each
chunk is sent to an OpenAI-compatible chat model that adds paragraph breaks and
"Speaker N:" labels without changing what was said. Throttled and transient API
failures are retried with exponential backoff.

If a chunk fails for good, or the run is interrupted with Ctrl+C, the chunks
formatted so far are saved to <output_file>.partial.

Settings are resolved in this order: flags, environment, config file, defaults.`,
		Example: `  speakerfmt meeting.txt meeting_formatted.txt
  speakerfmt interview.txt out.txt --speakers "Alice,Bob" --model gpt-4o
  speakerfmt long.txt out.txt --chunk_size 3000 --parallel 3 --pace 0
  speakerfmt raw.txt out.txt --base_url http://localhost:11434/v1 --api_key ollama`,
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, env, args[0], args[1], f)
		},
	}

	registerFormatFlags(cmd, &f)
	cmd.PersistentFlags().StringVar(&f.configPath, flagConfig, "", "Config file (default: $XDG_CONFIG_HOME/speakerfmt/config.yaml)")

	cmd.AddCommand(ConfigCmd(env, &f.configPath))

	return cmd
}

// runFormat executes one formatting run.
// Validation order: config -> settings -> input -> output, all before any network call.
func runFormat(cmd *cobra.Command, env *Env, inputPath, outputPath string, f formatFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// === VALIDATION (fail-fast) ===

	cfg, err := env.ConfigLoader.Load(configPathFor(env, f.configPath))
	if err != nil {
		return err
	}

	s, err := resolveSettings(cmd, env, f, cfg)
	if err != nil {
		return err
	}

	text, err := readInput(inputPath)
	if err != nil {
		return err
	}

	if err := checkOutput(outputPath, s.force); err != nil {
		return err
	}

	// === SETUP ===

	rep := newReporter(env, s)
	client := env.FormatterFactory.NewFormatter(FormatterSettings{
		APIKey:     s.apiKey,
		BaseURL:    s.baseURL,
		MaxRetries: s.maxRetries,
		Timeout:    s.timeout,
		Pace:       s.pace,
		Reporter:   rep,
	})
	builder := prompt.NewBuilder(
		prompt.WithModel(s.model),
		prompt.WithTemperature(float32(s.temperature)),
		prompt.WithSpeakers(s.speakers...),
	)
	p := pipeline.New(client,
		pipeline.WithMaxChunkChars(s.chunkSize),
		pipeline.WithParallel(s.parallel),
		pipeline.WithReporter(rep),
		pipeline.WithBuilder(builder),
		pipeline.WithClock(env.Now),
	)

	rep.Emit(report.Event{
		Level:   report.LevelInfo,
		Message: "formatting " + inputPath,
		Attrs: []slog.Attr{
			slog.String("model", builder.Model()),
			slog.String("size", format.Chars(utf8.RuneCountInString(text))),
			slog.Int("max_retries", s.maxRetries),
		},
	})

	// === FORMAT ===

	out, runErr := p.Run(ctx, text)
	if runErr != nil {
		return handleFailure(env, rep, outputPath, out, runErr)
	}

	if out.Summary.TotalChunks == 0 {
		rep.Emit(report.Event{Level: report.LevelWarning, Message: "input is empty, writing an empty output file"})
	}

	// === WRITE OUTPUT ===

	if err := writeFileAtomic(outputPath, out.Text, s.force); err != nil {
		return err
	}
	removeStalePartial(rep, outputPath)

	rep.Emit(report.Event{
		Level:   report.LevelSuccess,
		Message: "formatted transcript written to " + outputPath,
		Attrs:   summaryAttrs(out.Summary),
	})
	return nil
}

// handleFailure saves the successful prefix of a failed run and returns runErr.
func handleFailure(env *Env, rep report.Reporter, outputPath string, out pipeline.Output, runErr error) error {
	canceled := errors.Is(runErr, context.Canceled)
	if !canceled {
		rep.Emit(report.Event{Level: report.LevelError, Message: runErr.Error()})
	}

	if out.Text == "" {
		removeStalePartial(rep, outputPath)
		return runErr
	}

	if canceled && env.Interrupts != nil {
		msg := fmt.Sprintf("Saving %d formatted chunk(s). Press Ctrl+C again to discard them.", out.Summary.Succeeded)
		if env.Interrupts.Decide(msg) == interrupt.Discard {
			removeStalePartial(rep, outputPath)
			return runErr
		}
	}

	path := partialPath(outputPath)
	if err := writeFileAtomic(path, out.Text, true); err != nil {
		rep.Emit(report.Event{Level: report.LevelError, Message: "cannot save partial output: " + err.Error()})
		return runErr
	}
	rep.Emit(report.Event{
		Level:   report.LevelWarning,
		Message: "partial output written to " + path,
		Attrs:   summaryAttrs(out.Summary),
	})
	return runErr
}

// removeStalePartial deletes a .partial file left by an earlier run.
func removeStalePartial(rep report.Reporter, outputPath string) {
	path := partialPath(outputPath)
	err := os.Remove(path)
	switch {
	case err == nil:
		rep.Emit(report.Event{Level: report.LevelDebug, Message: "removed stale " + path})
	case !errors.Is(err, fs.ErrNotExist):
		rep.Emit(report.Event{Level: report.LevelWarning, Message: "cannot remove stale partial output: " + err.Error()})
	}
}

func summaryAttrs(s pipeline.Summary) []slog.Attr {
	return []slog.Attr{
		slog.String("chunks", fmt.Sprintf("%d/%d", s.Succeeded, s.TotalChunks)),
		slog.Int("attempts", s.Attempts),
		slog.String("output", format.Chars(s.OutputChars)),
		slog.String("ratio", format.Ratio(s.OutputChars, s.InputChars)),
		slog.String("elapsed", format.Elapsed(s.Elapsed)),
		slog.String("run_id", s.RunID),
	}
}

// newReporter builds the reporter selected by --log_format and --verbose.
func newReporter(env *Env, s settings) report.Reporter {
	level := report.LevelInfo
	if s.verbose {
		level = report.LevelDebug
	}
	if s.logFormat == LogFormatJSON {
		return report.NewJSON(env.Stderr, level)
	}
	return report.NewConsole(env.Stderr, report.WithMinLevel(level))
}
