package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/speakerfmt/internal/apierr"
	"github.com/alnah/speakerfmt/internal/formatter"
	"github.com/alnah/speakerfmt/internal/pipeline"
	"github.com/alnah/speakerfmt/internal/prompt"
	"github.com/alnah/speakerfmt/internal/report"
)

// ---------------------------------------------------------------------------
// Helpers - scripted formatter
// ---------------------------------------------------------------------------

// fiveParts splits into exactly five chunks at maxChars=14.
const fiveParts = "Part one.\n\nPart two.\n\nPart three.\n\nPart four.\n\nPart five."

type mockFormatter struct {
	mu    sync.Mutex
	calls []int
	// hook runs before the result is returned; it may override it.
	hook func(ctx context.Context, index int) (formatter.Result, bool)
}

func (m *mockFormatter) FormatChunk(ctx context.Context, req prompt.Request, total int) formatter.Result {
	m.mu.Lock()
	m.calls = append(m.calls, req.Chunk.Index)
	m.mu.Unlock()

	if m.hook != nil {
		if res, ok := m.hook(ctx, req.Chunk.Index); ok {
			return res
		}
	}
	return formatter.Result{ChunkIndex: req.Chunk.Index, Text: "F:" + req.Chunk.Text, Attempts: 1}
}

func (m *mockFormatter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func fatalResult(index int) formatter.Result {
	return formatter.Result{
		ChunkIndex: index,
		Attempts:   1,
		Kind:       apierr.KindFatal,
		Err:        apierr.ErrAuthFailed,
	}
}

func newPipeline(f pipeline.Formatter, opts ...pipeline.Option) *pipeline.Pipeline {
	base := []pipeline.Option{pipeline.WithMaxChunkChars(14), pipeline.WithIDFunc(func() string { return "run-1" })}
	return pipeline.New(f, append(base, opts...)...)
}

// ---------------------------------------------------------------------------
// TestRun - sequential runs
// ---------------------------------------------------------------------------

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()

	m := &mockFormatter{}
	out, err := newPipeline(m).Run(context.Background(), fiveParts)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "F:Part one.\n\nF:Part two.\n\nF:Part three.\n\nF:Part four.\n\nF:Part five."
	if out.Text != want {
		t.Errorf("Text = %q, want %q", out.Text, want)
	}
	if out.Partial {
		t.Error("Partial = true on success")
	}
	s := out.Summary
	if s.TotalChunks != 5 || s.Succeeded != 5 || s.Attempts != 5 || s.RunID != "run-1" {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.OutputChars != len(want) || s.InputChars != len(fiveParts) {
		t.Errorf("chars in=%d out=%d", s.InputChars, s.OutputChars)
	}
}

func TestRun_HaltsOnFirstFailure(t *testing.T) {
	t.Parallel()

	m := &mockFormatter{hook: func(_ context.Context, index int) (formatter.Result, bool) {
		if index == 2 {
			return fatalResult(index), true
		}
		return formatter.Result{}, false
	}}
	rec := &report.Recorder{}

	out, err := newPipeline(m, pipeline.WithReporter(rec)).Run(context.Background(), fiveParts)

	var ce *pipeline.ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *ChunkError", err)
	}
	if ce.Index != 2 || ce.Total != 5 || ce.Kind != apierr.KindFatal {
		t.Errorf("got %+v", ce)
	}
	if !errors.Is(err, apierr.ErrAuthFailed) {
		t.Errorf("error %v does not wrap ErrAuthFailed", err)
	}
	if !strings.HasPrefix(err.Error(), "chunk 3/5: FatalRequestError:") {
		t.Errorf("error message = %q", err.Error())
	}
	if m.callCount() != 3 {
		t.Errorf("formatter called %d times, want 3", m.callCount())
	}
	if out.Text != "F:Part one.\n\nF:Part two." || !out.Partial {
		t.Errorf("partial output = %q (partial=%v)", out.Text, out.Partial)
	}
	if len(out.Results) != 3 || out.Summary.Succeeded != 2 {
		t.Errorf("results=%d succeeded=%d", len(out.Results), out.Summary.Succeeded)
	}
	if rec.Count(report.LevelError) != 1 || rec.Count(report.LevelSuccess) != 2 {
		t.Errorf("errors=%d successes=%d", rec.Count(report.LevelError), rec.Count(report.LevelSuccess))
	}
}

func TestRun_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", " \n\t "} {
		m := &mockFormatter{}
		out, err := newPipeline(m).Run(context.Background(), text)

		if err != nil || out.Text != "" || out.Summary.TotalChunks != 0 {
			t.Errorf("Run(%q) = %+v, %v", text, out, err)
		}
		if m.callCount() != 0 {
			t.Errorf("Run(%q) called formatter %d times", text, m.callCount())
		}
	}
}

func TestRun_CanceledBetweenChunks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := &mockFormatter{hook: func(_ context.Context, index int) (formatter.Result, bool) {
		if index == 1 {
			cancel()
		}
		return formatter.Result{}, false
	}}

	out, err := newPipeline(m).Run(ctx, fiveParts)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	var ce *pipeline.ChunkError
	if errors.As(err, &ce) && (ce.Index != 2 || ce.Kind != apierr.KindCanceled) {
		t.Errorf("got %+v", ce)
	}
	if m.callCount() != 2 {
		t.Errorf("formatter called %d times, want 2", m.callCount())
	}
	if out.Text != "F:Part one.\n\nF:Part two." {
		t.Errorf("partial output = %q", out.Text)
	}
}

func TestRun_BuildsPromptsWithBuilder(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		models []string
	)
	f := formatterFunc(func(_ context.Context, req prompt.Request, total int) formatter.Result {
		mu.Lock()
		models = append(models, req.Model)
		mu.Unlock()
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
		return formatter.Result{ChunkIndex: req.Chunk.Index, Text: "x", Attempts: 1}
	})

	b := prompt.NewBuilder(prompt.WithModel("gpt-4o"))
	if _, err := newPipeline(f, pipeline.WithBuilder(b)).Run(context.Background(), fiveParts); err != nil {
		t.Fatal(err)
	}
	for _, m := range models {
		if m != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", m)
		}
	}
}

func TestRun_Elapsed(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 3 * time.Second)
	}

	out, err := newPipeline(&mockFormatter{}, pipeline.WithClock(clock)).Run(context.Background(), "Hello.")
	if err != nil {
		t.Fatal(err)
	}
	if out.Summary.Elapsed != 3*time.Second {
		t.Errorf("Elapsed = %v, want 3s", out.Summary.Elapsed)
	}
}

type formatterFunc func(ctx context.Context, req prompt.Request, total int) formatter.Result

func (f formatterFunc) FormatChunk(ctx context.Context, req prompt.Request, total int) formatter.Result {
	return f(ctx, req, total)
}

// ---------------------------------------------------------------------------
// TestRun_Parallel - bounded concurrency
// ---------------------------------------------------------------------------

func TestRun_ParallelKeepsOrder(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	m := &mockFormatter{hook: func(_ context.Context, index int) (formatter.Result, bool) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		// Later chunks finish first.
		time.Sleep(time.Duration(5-index) * 5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return formatter.Result{}, false
	}}

	out, err := newPipeline(m, pipeline.WithParallel(2)).Run(context.Background(), fiveParts)

	if err != nil {
		t.Fatal(err)
	}
	want := "F:Part one.\n\nF:Part two.\n\nF:Part three.\n\nF:Part four.\n\nF:Part five."
	if out.Text != want {
		t.Errorf("Text = %q", out.Text)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRun_ParallelReportsRealFailure(t *testing.T) {
	t.Parallel()

	firstTwoDone := make(chan struct{})
	var once sync.Once
	var done sync.WaitGroup
	done.Add(2)
	go func() {
		done.Wait()
		once.Do(func() { close(firstTwoDone) })
	}()

	m := &mockFormatter{hook: func(ctx context.Context, index int) (formatter.Result, bool) {
		switch index {
		case 0, 1:
			defer done.Done()
			return formatter.Result{}, false
		case 2:
			select {
			case <-firstTwoDone:
			case <-time.After(time.Second):
			}
			return fatalResult(index), true
		default:
			// In-flight siblings observe the cancellation caused by chunk 3.
			<-ctx.Done()
			return formatter.Result{ChunkIndex: index, Kind: apierr.KindCanceled, Err: ctx.Err()}, true
		}
	}}

	out, err := newPipeline(m, pipeline.WithParallel(5)).Run(context.Background(), fiveParts)

	var ce *pipeline.ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *ChunkError", err)
	}
	if ce.Index != 2 || ce.Kind != apierr.KindFatal {
		t.Errorf("got index=%d kind=%v, want 2 FatalRequestError", ce.Index, ce.Kind)
	}
	if out.Text != "F:Part one.\n\nF:Part two." {
		t.Errorf("partial output = %q", out.Text)
	}
}

func TestRun_ParallelStartsInIndexOrder(t *testing.T) {
	t.Parallel()

	const parallel = 3
	var (
		mu       sync.Mutex
		finished = map[int]bool{}
		overrun  []int
	)
	m := &mockFormatter{hook: func(_ context.Context, index int) (formatter.Result, bool) {
		mu.Lock()
		unfinished := 0
		for lower := range index {
			if !finished[lower] {
				unfinished++
			}
		}
		if unfinished > parallel-1 {
			overrun = append(overrun, index)
		}
		mu.Unlock()

		time.Sleep(time.Duration((index+1)%2) * 10 * time.Millisecond)

		mu.Lock()
		finished[index] = true
		mu.Unlock()
		return formatter.Result{}, false
	}}
	rec := &report.Recorder{}

	_, err := newPipeline(m, pipeline.WithParallel(parallel), pipeline.WithReporter(rec)).Run(context.Background(), fiveParts)
	if err != nil {
		t.Fatal(err)
	}

	var started []int
	for _, e := range rec.Events() {
		if e.Message == "formatting chunk" {
			started = append(started, e.Chunk)
		}
	}
	if !slices.Equal(started, []int{1, 2, 3, 4, 5}) {
		t.Errorf("chunks started in order %v, want 1..5", started)
	}
	if len(overrun) > 0 {
		t.Errorf("chunks %v started with more than %d earlier chunks unfinished", overrun, parallel-1)
	}
}

func TestRun_ParallelFailureKeepsEarlierChunks(t *testing.T) {
	t.Parallel()

	secondFailed := make(chan struct{})
	m := &mockFormatter{hook: func(ctx context.Context, index int) (formatter.Result, bool) {
		switch index {
		case 0:
			// Still in flight when chunk 1 fails.
			select {
			case <-secondFailed:
			case <-ctx.Done():
				return formatter.Result{ChunkIndex: index, Kind: apierr.KindCanceled, Err: ctx.Err()}, true
			}
			return formatter.Result{}, false
		case 1:
			defer close(secondFailed)
			return fatalResult(index), true
		}
		return formatter.Result{}, false
	}}

	out, err := newPipeline(m, pipeline.WithParallel(2)).Run(context.Background(), fiveParts)

	var ce *pipeline.ChunkError
	if !errors.As(err, &ce) || ce.Index != 1 || ce.Kind != apierr.KindFatal {
		t.Fatalf("error = %v, want chunk 2/5 FatalRequestError", err)
	}
	if out.Text != "F:Part one." {
		t.Errorf("partial output = %q, want %q", out.Text, "F:Part one.")
	}
	if out.Summary.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", out.Summary.Succeeded)
	}
	if n := m.callCount(); n != 2 {
		t.Errorf("formatter called %d times, want 2 (no chunk after the failure)", n)
	}
}

func TestRun_ParallelSucceededCountsOnlyPrefix(t *testing.T) {
	t.Parallel()

	secondDone := make(chan struct{})
	m := &mockFormatter{hook: func(_ context.Context, index int) (formatter.Result, bool) {
		switch index {
		case 0:
			<-secondDone
			return fatalResult(index), true
		case 1:
			defer close(secondDone)
		}
		return formatter.Result{}, false
	}}

	out, err := newPipeline(m, pipeline.WithParallel(2)).Run(context.Background(), fiveParts)

	var ce *pipeline.ChunkError
	if !errors.As(err, &ce) || ce.Index != 0 {
		t.Fatalf("error = %v, want chunk 1/5 failure", err)
	}
	if out.Text != "" || out.Summary.Succeeded != 0 {
		t.Errorf("Text = %q, Succeeded = %d, want empty and 0", out.Text, out.Summary.Succeeded)
	}
}

func TestWithParallel_Clamps(t *testing.T) {
	t.Parallel()

	// Out-of-range values must still produce a working pipeline.
	for _, n := range []int{-1, 0, pipeline.MaxParallel + 5} {
		out, err := newPipeline(&mockFormatter{}, pipeline.WithParallel(n)).Run(context.Background(), fiveParts)
		if err != nil || out.Summary.Succeeded != 5 {
			t.Errorf("WithParallel(%d): succeeded=%d err=%v", n, out.Summary.Succeeded, err)
		}
	}
}
