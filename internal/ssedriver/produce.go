package ssedriver

import (
	"context"
	"fmt"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// Produce runs a query handler body in its own goroutine and returns the
// item channel Drive consumes. emit delivers one item downstream and
// reports false once ctx is cancelled, at which point the handler should
// return promptly.
//
// A non-nil error or a panic from fn is converted into one final error
// event with retry disallowed; the channel then closes, so Drive still
// finishes the stream with its terminal done event. This is the propagation
// policy for handler failures: the peer sees an error record, never a
// silently truncated stream.
func Produce(ctx context.Context, fn func(ctx context.Context, emit func(Item) bool) error) <-chan Item {
	out := make(chan Item)

	emit := func(item Item) bool {
		select {
		case out <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%v", r)
				}
			}()
			return fn(ctx, emit)
		}()

		if err != nil && ctx.Err() == nil {
			resp := protocol.NewError(err.Error(), false, "")
			select {
			case out <- ResponseItem(resp):
			case <-ctx.Done():
			}
		}
	}()

	return out
}
