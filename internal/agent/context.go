package agent

import (
	"errors"
	"fmt"
	"sync"
)

// ErrKeyExists is returned by Put when a key was already written.
var ErrKeyExists = errors.New("context key already set")

// Context is the append-only key/value store stages share during one run.
// Readers must treat an absent key as "no data", never as an error.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
	keys   []string
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{values: map[string]any{}}
}

// Put stores v under key. Keys are write-once.
func (c *Context) Put(key string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return fmt.Errorf("%w: %s", ErrKeyExists, key)
	}
	c.values[key] = v
	c.keys = append(c.keys, key)
	return nil
}

// Get returns the value under key. It is safe to call on a nil Context.
func (c *Context) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Keys lists keys in insertion order.
func (c *Context) Keys() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.keys...)
}

// Lookup fetches key and asserts it to T. It reports false when the key is
// absent or holds a different type.
func Lookup[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
