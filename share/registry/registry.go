package registry

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrNotRegistered = errors.New("not registered")
	ErrWrongType     = errors.New("registered value has unexpected type")
)

type Key string

// Factory builds a fresh value on every Resolve.
type Factory func(r *Registry) (interface{}, error)

type entry struct {
	factory  Factory
	instance interface{}
}

// Registry maps contract keys to factories or pre-built instances. It does not memoize
// factories: singletons are expressed by registering an instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]entry
}

func New() *Registry {
	return &Registry{entries: make(map[Key]entry)}
}

func (r *Registry) Register(key Key, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{factory: factory}
}

func (r *Registry) RegisterInstance(key Key, instance interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{instance: instance}
}

func (r *Registry) Resolve(key Key) (interface{}, error) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotRegistered, "resolve %q", key)
	}
	if e.factory == nil {
		return e.instance, nil
	}
	// the lock is released, factories may resolve their own dependencies
	v, err := e.factory(r)
	if err != nil {
		return nil, errors.Wrapf(err, "build %q", key)
	}
	return v, nil
}

func ResolveAs[T any](r *Registry, key Key) (T, error) {
	var zero T
	v, err := r.Resolve(key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.Wrapf(ErrWrongType, "resolve %q: got %T", key, v)
	}
	return typed, nil
}
