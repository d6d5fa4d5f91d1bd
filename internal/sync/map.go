package sync

import "sync"

// Map is a generic thread-safe map guarded by an RWMutex.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok = m.m[key]
	return
}

func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}

func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// LoadAndDelete deletes the value for a key, returning the previous value if any.
func (m *Map[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, loaded = m.m[key]
	if loaded {
		delete(m.m, key)
	}
	return
}

// Range calls f for each entry under the read lock; f must not call back
// into the map. Iteration stops when f returns false.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.m {
		if !f(k, v) {
			break
		}
	}
}

// Collect returns the values accepted by keep. keep runs under the read lock;
// the result may be acted on after it is released.
func (m *Map[K, V]) Collect(keep func(key K, value V) bool) []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []V
	for k, v := range m.m {
		if keep(k, v) {
			out = append(out, v)
		}
	}
	return out
}

// Drain empties the map and returns what it held.
func (m *Map[K, V]) Drain() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.m
	m.m = make(map[K]V)
	return old
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// View reads and writes the map while WithLock holds its write lock.
type View[K comparable, V any] interface {
	Get(key K) (value V, ok bool)
	Set(key K, value V)
}

type mapView[K comparable, V any] map[K]V

func (mv mapView[K, V]) Get(key K) (value V, ok bool) {
	value, ok = mv[key]
	return
}

func (mv mapView[K, V]) Set(key K, value V) {
	mv[key] = value
}

// WithLock runs f with the write lock held, for read-modify-write sequences.
func (m *Map[K, V]) WithLock(f func(view View[K, V])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(mapView[K, V](m.m))
}
