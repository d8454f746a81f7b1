package audit

import (
	"context"
)

// Recorder is the narrow sink the other domain services write through. The
// pg-backed Service implements it; tests swap in an in-memory recorder.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error)
}
