package application

import "context"

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Transactor runs fn atomically. Repositories called with the ctx handed to fn
// take part in the same transaction; a nested WithinTx joins the outer one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type IDGenerator interface {
	NewID() string
}
