// Package locks provides keyed reader/writer locks for per-document coordination.
package locks

import "sync"

type entry struct {
	mu   sync.RWMutex
	refs int
}

// Documents hands out one RWMutex per key. Entries are reference counted and
// dropped once no goroutine holds or waits on them.
type Documents struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty lock table.
func New() *Documents {
	return &Documents{entries: make(map[string]*entry)}
}

func (d *Documents) acquire(key string) *entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		e = &entry{}
		d.entries[key] = e
	}
	e.refs++
	return e
}

func (d *Documents) release(key string, e *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(d.entries, key)
	}
}

// Lock takes the exclusive lock for key and returns its release function.
func (d *Documents) Lock(key string) (unlock func()) {
	e := d.acquire(key)
	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			d.release(key, e)
		})
	}
}

// RLock takes a shared lock for key and returns its release function.
func (d *Documents) RLock(key string) (unlock func()) {
	e := d.acquire(key)
	e.mu.RLock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.RUnlock()
			d.release(key, e)
		})
	}
}

// Len returns the number of keys currently tracked.
func (d *Documents) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
