package report

import (
	"context"
	"io"
	"log/slog"
)

// slogLevelSuccess sits between slog's Info and Warn.
const slogLevelSuccess = slog.Level(2)

// Slog forwards events to a *slog.Logger.
type Slog struct {
	logger *slog.Logger
}

// NewSlog wraps logger.
func NewSlog(logger *slog.Logger) *Slog {
	return &Slog{logger: logger}
}

// NewJSON returns a Slog reporter writing JSON lines to w, dropping events below minLevel.
func NewJSON(w io.Writer, minLevel Level) *Slog {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: toSlogLevel(minLevel),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slogLevelSuccess {
					return slog.String(slog.LevelKey, LevelSuccess.String())
				}
			}
			return a
		},
	})
	return NewSlog(slog.New(h))
}

// Emit logs e with chunk and total as attributes.
func (s *Slog) Emit(e Event) {
	attrs := make([]slog.Attr, 0, len(e.Attrs)+2)
	if e.Chunk > 0 {
		attrs = append(attrs, slog.Int("chunk", e.Chunk), slog.Int("total", e.Total))
	}
	attrs = append(attrs, e.Attrs...)
	s.logger.LogAttrs(context.Background(), toSlogLevel(e.Level), e.Message, attrs...)
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelSuccess:
		return slogLevelSuccess
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var _ Reporter = (*Slog)(nil)
