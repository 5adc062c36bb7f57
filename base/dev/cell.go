package dev

import "context"

// Cell is a one-shot value slot shared between a single producer and a
// single consumer. A Put that is never taken is overwritten by the next one.
type Cell[T any] struct {
	ch chan T
}

func NewCell[T any]() *Cell[T] {
	return &Cell[T]{ch: make(chan T, 1)}
}

func (c *Cell[T]) Put(v T) {
	for {
		select {
		case c.ch <- v:
			return
		default:
		}

		// Full: drop the stale value and retry
		select {
		case <-c.ch:
		default:
		}
	}
}

// Take returns the pending value, if any, without blocking.
func (c *Cell[T]) Take() (T, bool) {
	select {
	case v := <-c.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Wait blocks until a value is available or ctx is done.
func (c *Cell[T]) Wait(ctx context.Context) (T, error) {
	select {
	case v := <-c.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
