package core

import "context"

// Source yields raw CSV rows (first row = header) for one input.
//
// Parsing lives outside the core; implementations are in pkg/pipeline/io/local.
type Source interface {
	// Name identifies the source in error messages (usually a file path).
	Name() string
	Load(ctx context.Context) ([][]string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	Label string
	Fn    func(ctx context.Context) ([][]string, error)
}

func (s SourceFunc) Name() string { return s.Label }

func (s SourceFunc) Load(ctx context.Context) ([][]string, error) {
	return s.Fn(ctx)
}
