package fetch

import (
	"context"
	"sync"
)

// flights deduplicates concurrent fetches of the same key. The first caller
// starts the work; later callers wait for its result. The work runs on its
// own context and is cancelled only when every waiter has given up.
type flights struct {
	mu      sync.Mutex
	calls   map[string]*flight
	running int
}

type flight struct {
	done    chan struct{}
	data    []byte
	err     error
	waiters int
	cancel  context.CancelFunc
}

// do returns the result of fn for key, sharing one execution among
// concurrent callers. joined reports whether this caller attached to an
// execution already in progress.
func (f *flights) do(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) (data []byte, joined bool, err error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]*flight)
	}
	c, joined := f.calls[key]
	if !joined {
		workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &flight{done: make(chan struct{}), cancel: cancel}
		f.calls[key] = c
		f.running++
		go f.run(key, c, workCtx, fn)
	}
	c.waiters++
	f.mu.Unlock()

	select {
	case <-c.done:
		return c.data, joined, c.err
	case <-ctx.Done():
		f.mu.Lock()
		c.waiters--
		if c.waiters == 0 {
			// Later callers start a fresh execution instead of joining a
			// cancelled one.
			if f.calls[key] == c {
				delete(f.calls, key)
			}
			c.cancel()
		}
		f.mu.Unlock()
		return nil, joined, ctx.Err()
	}
}

func (f *flights) run(key string, c *flight, ctx context.Context, fn func(context.Context) ([]byte, error)) {
	defer c.cancel()
	c.data, c.err = fn(ctx)

	f.mu.Lock()
	if f.calls[key] == c {
		delete(f.calls, key)
	}
	f.running--
	f.mu.Unlock()
	close(c.done)
}

// pending reports the number of executions still running, including
// cancelled ones that have not yet returned.
func (f *flights) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
