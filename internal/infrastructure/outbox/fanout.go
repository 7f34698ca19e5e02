package outbox

import (
	"context"
	"errors"

	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
)

// Fanout publishes every event to all targets and joins their errors.
type Fanout []domoutbox.Publisher

func NewFanout(targets ...domoutbox.Publisher) Fanout {
	out := make(Fanout, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (f Fanout) Publish(ctx context.Context, e domoutbox.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
