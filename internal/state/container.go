package state

import "sync"

// Container owns the AppState. All mutation goes through Update, which
// serializes transitions; readers get deep copies.
type Container struct {
	mu   sync.Mutex
	st   AppState
	subs map[chan struct{}]struct{}
}

// NewContainer creates a container holding initial.
func NewContainer(initial AppState) *Container {
	return &Container{
		st:   initial.Clone(),
		subs: make(map[chan struct{}]struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (c *Container) Snapshot() AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Clone()
}

// Update applies fn to the live state and returns a copy of the result.
// fn must not block or call back into the container.
func (c *Container) Update(fn func(*AppState)) AppState {
	c.mu.Lock()
	fn(&c.st)
	out := c.st.Clone()
	subs := make([]chan struct{}, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return out
}

// Subscribe returns a channel signalled after every Update. Signals
// coalesce; receivers should read a fresh Snapshot. The returned func
// unsubscribes.
func (c *Container) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}
