package pipeline

import (
	"fmt"

	"github.com/alnah/speakerfmt/internal/apierr"
	"github.com/alnah/speakerfmt/internal/formatter"
)

// ChunkError reports the chunk that halted a run.
// Index is zero-based; the message shows it one-based.
type ChunkError struct {
	Index    int
	Total    int
	Kind     apierr.Kind
	Attempts int
	Err      error
}

func newChunkError(res formatter.Result, total int) *ChunkError {
	return &ChunkError{
		Index:    res.ChunkIndex,
		Total:    total,
		Kind:     res.Kind,
		Attempts: res.Attempts,
		Err:      res.Err,
	}
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d/%d: %s: %v", e.Index+1, e.Total, e.Kind, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
