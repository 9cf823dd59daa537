package chronicle

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// StoreFileListener receives notifications when a StorePool acquires or
// releases the backing store for a cycle.
type StoreFileListener interface {
	OnAcquired(cycle int64, path string)
	OnReleased(cycle int64, path string)
}

// NopStoreFileListener implements StoreFileListener with no-op methods.
type NopStoreFileListener struct{}

func (NopStoreFileListener) OnAcquired(int64, string) {}
func (NopStoreFileListener) OnReleased(int64, string) {}

// poolEntry is the per-cycle bookkeeping for a StorePool: a refcounted
// handle installed under a lock taken only during installation.
type poolEntry struct {
	store     *ChronicleStore
	refCount  atomic.Int32
	path      string
	installMu sync.Mutex
}

// StorePool manages the lifecycle of per-cycle ChronicleStores sharing a
// common directory and filename prefix. Cycle is an opaque int64
// identifier (typically a day or hour number); naming cycles to paths is
// the caller's responsibility via the PathFunc supplied at construction.
type StorePool struct {
	cfg      Config
	pathFunc func(cycle int64) string
	listener StoreFileListener

	mu      sync.Mutex
	entries map[int64]*poolEntry
}

// NewStorePool constructs a StorePool. pathFunc maps a cycle to the base
// path (without ".index"/".data"/".meta" suffixes) of its store. A nil
// listener installs NopStoreFileListener.
func NewStorePool(cfg Config, pathFunc func(cycle int64) string, listener StoreFileListener) *StorePool {
	if listener == nil {
		listener = NopStoreFileListener{}
	}

	return &StorePool{
		cfg:      cfg,
		pathFunc: pathFunc,
		listener: listener,
		entries:  make(map[int64]*poolEntry),
	}
}

// Acquire returns a refcounted store for cycle, opening (and optionally
// creating) it on first use. Call Release exactly once per successful
// Acquire. If createIfAbsent is false and no store file exists yet for
// cycle, Acquire returns (nil, false, nil).
func (p *StorePool) Acquire(cycle int64, createIfAbsent bool) (*ChronicleStore, bool, error) {
	path := p.pathFunc(cycle)

	p.mu.Lock()
	entry, ok := p.entries[cycle]
	if ok {
		entry.refCount.Add(1)
		p.mu.Unlock()

		return entry.store, true, nil
	}

	entry = &poolEntry{path: path}
	entry.installMu.Lock()
	p.entries[cycle] = entry
	p.mu.Unlock()
	defer entry.installMu.Unlock()

	if !createIfAbsent {
		exists, err := storeFilesExist(path)
		if err != nil {
			p.removeEntry(cycle)
			return nil, false, err
		}

		if !exists {
			p.removeEntry(cycle)
			return nil, false, nil
		}
	}

	store, err := Open(path, p.cfg)
	if err != nil {
		p.removeEntry(cycle)
		return nil, false, err
	}

	entry.store = store
	entry.refCount.Store(1)

	p.listener.OnAcquired(cycle, path)

	return store, true, nil
}

// Release decrements the refcount for the store holding this cycle's
// entry; at zero it closes the store and notifies the listener.
func (p *StorePool) Release(cycle int64, store *ChronicleStore) {
	p.mu.Lock()
	entry, ok := p.entries[cycle]
	p.mu.Unlock()

	if !ok || entry.store != store {
		return
	}

	if entry.refCount.Add(-1) > 0 {
		return
	}

	p.mu.Lock()
	if cur, ok := p.entries[cycle]; ok && cur == entry {
		delete(p.entries, cycle)
	}
	p.mu.Unlock()

	_ = store.Close()
	p.listener.OnReleased(cycle, entry.path)
}

func (p *StorePool) removeEntry(cycle int64) {
	p.mu.Lock()
	delete(p.entries, cycle)
	p.mu.Unlock()
}

// NextCycle advances from current in direction dir (+1 or -1) to the
// nearest populated cycle, searching the pool's known open entries only.
// Callers that need to discover cycles from disk should list the backing
// directory and pass candidates to Cycles.
func (p *StorePool) NextCycle(current int64, dir int64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := int64(0)
	found := false

	for cycle := range p.entries {
		if dir > 0 && cycle > current {
			if !found || cycle < best {
				best, found = cycle, true
			}
		} else if dir < 0 && cycle < current {
			if !found || cycle > best {
				best, found = cycle, true
			}
		}
	}

	return best, found
}

// Cycles returns the sorted set of currently open cycles within [lo, hi].
func (p *StorePool) Cycles(lo, hi int64) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []int64

	for cycle := range p.entries {
		if cycle >= lo && cycle <= hi {
			out = append(out, cycle)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func storeFilesExist(basePath string) (bool, error) {
	for _, suffix := range []string{".index", ".data"} {
		exists, err := fileExists(basePath + suffix)
		if err != nil {
			return false, fmt.Errorf("checking %s: %w", basePath+suffix, err)
		}

		if !exists {
			return false, nil
		}
	}

	return true, nil
}
