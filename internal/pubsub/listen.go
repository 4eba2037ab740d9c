package pubsub

import "context"

// Consume calls fn for each event on ch until ch is closed or ctx ends.
// It blocks, so callers usually run it in its own goroutine.
func Consume[T any](ctx context.Context, ch <-chan Event[T], fn func(Event[T])) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fn(ev)
		}
	}
}
