package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ANSI escape codes used per level.
const (
	colorMagenta = "\033[95m"
	colorBlue    = "\033[94m"
	colorGreen   = "\033[92m"
	colorYellow  = "\033[93m"
	colorRed     = "\033[91m"
	colorReset   = "\033[0m"
)

var levelColors = map[Level]string{
	LevelDebug:   colorMagenta,
	LevelInfo:    colorBlue,
	LevelSuccess: colorGreen,
	LevelWarning: colorYellow,
	LevelError:   colorRed,
}

// Console renders events as human-readable lines:
//
//	[INFO] [2/5] formatting chunk chars=1980
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	color    bool
	minLevel Level
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithColor forces colors on or off, overriding terminal detection.
func WithColor(on bool) ConsoleOption {
	return func(c *Console) {
		c.color = on
	}
}

// WithMinLevel drops events below level.
func WithMinLevel(level Level) ConsoleOption {
	return func(c *Console) {
		c.minLevel = level
	}
}

// NewConsole creates a Console writing to w. Colors are enabled when w is a
// terminal; on Windows the writer is wrapped so ANSI codes are translated.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{w: w, minLevel: LevelInfo}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		c.w = colorable.NewColorable(f)
		c.color = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Emit writes e as one line.
func (c *Console) Emit(e Event) {
	if e.Level < c.minLevel {
		return
	}

	var b strings.Builder
	tag := "[" + e.Level.String() + "]"
	if c.color {
		tag = levelColors[e.Level] + tag + colorReset
	}
	b.WriteString(tag)
	if e.Chunk > 0 {
		fmt.Fprintf(&b, " [%d/%d]", e.Chunk, e.Total)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	for _, a := range e.Attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	b.WriteString("\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.w, b.String())
}

var _ Reporter = (*Console)(nil)
