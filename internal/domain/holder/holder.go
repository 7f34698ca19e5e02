// Package holder describes the people allowed to hold reservations.
package holder

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("holder: not found")

type Holder struct {
	ID   int64
	Name string
}

// Directory answers whether a holder is known. It is read-only from the
// reservation workflow's point of view.
type Directory interface {
	Exists(ctx context.Context, holderID int64) (bool, error)
}

// Registry is implemented by stores that can also create holders (seeding).
type Registry interface {
	Directory
	AddHolder(ctx context.Context, h Holder) error
}
