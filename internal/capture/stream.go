package capture

import (
	"context"
	"errors"

	"firestige.xyz/pulso/internal/core"
)

// Delivery is one poll result handed to the runtime loop: a frame, or the
// error the source returned instead.
type Delivery struct {
	Frame core.RawFrame
	Err   error
}

// Stream polls src on its own goroutine and delivers frames in read order.
// Cancellation is checked before every poll; empty polls are not delivered.
// The channel is closed after ctx is cancelled or after a core.ErrStreamClosed
// delivery. The caller must drain the channel until it is closed before
// closing src.
func Stream(ctx context.Context, src Source) <-chan Delivery {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			frame, err := src.ReadFrame()
			if errors.Is(err, core.ErrNoFrame) {
				continue
			}

			select {
			case out <- Delivery{Frame: frame, Err: err}:
			case <-ctx.Done():
				return
			}

			if errors.Is(err, core.ErrStreamClosed) {
				return
			}
		}
	}()
	return out
}
