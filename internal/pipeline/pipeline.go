// Package pipeline drives a whole transcript through the formatter: it splits
// the text into chunks, formats them in order (or with bounded parallelism),
// halts on the first failed chunk and reassembles what succeeded.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/speakerfmt/internal/apierr"
	"github.com/alnah/speakerfmt/internal/chunk"
	"github.com/alnah/speakerfmt/internal/formatter"
	"github.com/alnah/speakerfmt/internal/prompt"
	"github.com/alnah/speakerfmt/internal/report"
)

// Concurrency bounds.
const (
	DefaultParallel = 1
	MaxParallel     = 10
)

// chunkSeparator joins formatted chunks in the output.
const chunkSeparator = "\n\n"

// Formatter formats a single chunk. *formatter.Client implements it.
type Formatter interface {
	FormatChunk(ctx context.Context, req prompt.Request, total int) formatter.Result
}

var _ Formatter = (*formatter.Client)(nil)

// Summary describes a finished run.
type Summary struct {
	RunID       string
	TotalChunks int
	Succeeded   int
	Attempts    int
	InputChars  int
	OutputChars int
	Elapsed     time.Duration
}

// Output is the result of a run. On failure Text holds the formatted chunks
// that precede the failed one and Partial is true.
type Output struct {
	Text    string
	Partial bool
	Results []formatter.Result
	Summary Summary
}

// Pipeline formats whole transcripts.
type Pipeline struct {
	formatter Formatter
	builder   *prompt.Builder
	maxChars  int
	parallel  int
	reporter  report.Reporter
	now       func() time.Time
	newID     func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxChunkChars sets the chunk size limit in characters.
func WithMaxChunkChars(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxChars = n
		}
	}
}

// WithBuilder sets the prompt builder.
func WithBuilder(b *prompt.Builder) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.builder = b
		}
	}
}

// WithParallel sets how many chunks may be in flight at once, clamped to [1, MaxParallel].
func WithParallel(n int) Option {
	return func(p *Pipeline) {
		p.parallel = min(max(n, 1), MaxParallel)
	}
}

// WithReporter sets where progress events go.
func WithReporter(r report.Reporter) Option {
	return func(p *Pipeline) {
		p.reporter = report.OrDiscard(r)
	}
}

// WithClock sets the time source used for Summary.Elapsed.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// withIDFunc sets the run ID generator (for testing).
func withIDFunc(fn func() string) Option {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

// New creates a Pipeline that formats chunks with f.
func New(f Formatter, opts ...Option) *Pipeline {
	p := &Pipeline{
		formatter: f,
		builder:   prompt.NewBuilder(),
		maxChars:  chunk.DefaultMaxChars,
		parallel:  DefaultParallel,
		reporter:  report.Discard,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run formats text. It returns a *ChunkError when a chunk fails or ctx is
// canceled; the returned Output is still meaningful in that case.
func (p *Pipeline) Run(ctx context.Context, text string) (Output, error) {
	start := p.now()
	runID := p.newID()

	chunks := chunk.Split(text, p.maxChars)
	total := len(chunks)
	p.reporter.Emit(report.Event{
		Level:   report.LevelInfo,
		Message: "split transcript",
		Attrs: []slog.Attr{
			slog.Int("chunks", total),
			slog.Int("max_chars", p.maxChars),
			slog.String("run_id", runID),
		},
	})

	var (
		results []formatter.Result
		err     error
	)
	switch {
	case total == 0:
	case p.parallel > 1:
		results, err = p.runParallel(ctx, chunks)
	default:
		results, err = p.runSequential(ctx, chunks)
	}

	out := assemble(results, err != nil)
	out.Summary.RunID = runID
	out.Summary.TotalChunks = total
	out.Summary.InputChars = utf8.RuneCountInString(text)
	out.Summary.Elapsed = p.now().Sub(start)
	return out, err
}

func (p *Pipeline) runSequential(ctx context.Context, chunks []chunk.Chunk) ([]formatter.Result, error) {
	total := len(chunks)
	results := make([]formatter.Result, 0, total)
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return results, &ChunkError{Index: c.Index, Total: total, Kind: apierr.KindCanceled, Err: err}
		}
		res := p.formatOne(ctx, c, total)
		results = append(results, res)
		if !res.Succeeded() {
			return results, newChunkError(res, total)
		}
	}
	return results, nil
}

// runParallel formats up to p.parallel chunks at once. Chunks start in index
// order. A failed chunk cancels only the chunks after it, so every chunk
// before the failure still completes; results keep chunk order.
func (p *Pipeline) runParallel(ctx context.Context, chunks []chunk.Chunk) ([]formatter.Result, error) {
	total := len(chunks)
	slots := make([]formatter.Result, total)
	attempted := make([]bool, total)

	var (
		mu       sync.Mutex
		failedAt = total
		cancels  = make([]context.CancelFunc, total)
	)
	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failedAt < total
	}

	// Semaphore channel for concurrency control, acquired before each start.
	sem := make(chan struct{}, p.parallel)
	var g errgroup.Group

dispatch:
	for i, c := range chunks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if stopped() || ctx.Err() != nil {
			<-sem
			break
		}

		cctx, cancel := context.WithCancel(ctx)
		mu.Lock()
		cancels[i] = cancel
		mu.Unlock()

		p.announce(c, total)
		attempted[i] = true
		g.Go(func() error {
			defer func() { <-sem }()
			defer cancel()

			res := p.format(cctx, c, total)
			slots[i] = res
			if res.Succeeded() {
				return nil
			}

			mu.Lock()
			failedAt = min(failedAt, i)
			for _, later := range cancels[i+1:] {
				if later != nil {
					later()
				}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var results []formatter.Result
	for i := range slots {
		if !attempted[i] {
			continue
		}
		results = append(results, slots[i])
	}

	switch {
	case failedAt < total:
		return results, newChunkError(slots[failedAt], total)
	case ctx.Err() != nil && firstMissing(attempted) < total:
		return results, &ChunkError{Index: firstMissing(attempted), Total: total, Kind: apierr.KindCanceled, Err: ctx.Err()}
	}
	return results, nil
}

func (p *Pipeline) formatOne(ctx context.Context, c chunk.Chunk, total int) formatter.Result {
	p.announce(c, total)
	return p.format(ctx, c, total)
}

func (p *Pipeline) announce(c chunk.Chunk, total int) {
	p.reporter.Emit(report.Event{
		Level: report.LevelInfo, Chunk: c.Index + 1, Total: total,
		Message: "formatting chunk", Attrs: []slog.Attr{slog.Int("chars", c.Len())},
	})
}

func (p *Pipeline) format(ctx context.Context, c chunk.Chunk, total int) formatter.Result {
	num := c.Index + 1
	res := p.formatter.FormatChunk(ctx, p.builder.Build(c), total)
	res.ChunkIndex = c.Index

	if res.Succeeded() {
		p.reporter.Emit(report.Event{
			Level: report.LevelSuccess, Chunk: num, Total: total,
			Message: "formatted chunk", Attrs: []slog.Attr{slog.Int("attempts", res.Attempts)},
		})
		return res
	}
	if res.Kind != apierr.KindCanceled {
		p.reporter.Emit(report.Event{
			Level: report.LevelError, Chunk: num, Total: total,
			Message: "chunk failed",
			Attrs: []slog.Attr{
				slog.String("kind", res.Kind.String()),
				slog.Int("attempts", res.Attempts),
				slog.String("error", res.Err.Error()),
			},
		})
	}
	return res
}

// assemble joins the leading run of successful results in chunk order.
// Only that run counts as succeeded.
func assemble(results []formatter.Result, failed bool) Output {
	out := Output{Results: results, Partial: failed}

	var parts []string
	for i, r := range results {
		out.Summary.Attempts += r.Attempts
		if len(parts) == i && r.Succeeded() && r.ChunkIndex == i {
			parts = append(parts, r.Text)
		}
	}
	out.Summary.Succeeded = len(parts)
	out.Text = strings.Join(parts, chunkSeparator)
	out.Summary.OutputChars = utf8.RuneCountInString(out.Text)
	return out
}

func firstMissing(attempted []bool) int {
	for i, ok := range attempted {
		if !ok {
			return i
		}
	}
	return len(attempted)
}
