package storage

import "context"

// Redactor rewrites text before it is persisted.
type Redactor interface {
	Redact(text string) string
}

// RedactingStore redacts run inputs and outputs on their way into the
// wrapped Store. Reads return what was stored.
type RedactingStore struct {
	Store
	redactor Redactor
}

// NewRedactingStore wraps store. A nil redactor returns store unchanged.
func NewRedactingStore(store Store, redactor Redactor) Store {
	if redactor == nil {
		return store
	}
	return &RedactingStore{Store: store, redactor: redactor}
}

// Upsert stores a redacted copy of s; s itself is not modified.
func (r *RedactingStore) Upsert(ctx context.Context, s *Session) error {
	if s == nil {
		return r.Store.Upsert(ctx, s)
	}
	clean := *s
	clean.Runs = make([]Run, len(s.Runs))
	for i, run := range s.Runs {
		run.Input = r.redactor.Redact(run.Input)
		run.Output = r.redactor.Redact(run.Output)
		clean.Runs[i] = run
	}
	return r.Store.Upsert(ctx, &clean)
}
