// Package instancelock keeps a single bot process polling per token.
package instancelock

import (
	"context"
	"errors"
)

// ErrHeld is returned when another live instance owns the lock.
var ErrHeld = errors.New("another instance is running")

// Lock is an acquired instance lock.
type Lock interface {
	Release(ctx context.Context) error
}
