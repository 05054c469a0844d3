package hub

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/id"
)

// Registry owns the identifiers and storage for one resource kind on one
// backend. It is safe for concurrent use: lookups take the read lock,
// registration and removal take the write lock.
type Registry[T any] struct {
	kind     id.Kind
	backend  gputypes.Backend
	identity *IdentityManager

	mu      sync.RWMutex
	storage storage[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any](kind id.Kind, backend gputypes.Backend) *Registry[T] {
	return &Registry[T]{
		kind:     kind,
		backend:  backend,
		identity: NewIdentityManager(backend),
		storage:  newStorage[T](kind),
	}
}

// Kind returns the resource kind stored in r.
func (r *Registry[T]) Kind() id.Kind { return r.kind }

// Backend returns the backend tag of every identifier r produces.
func (r *Registry[T]) Backend() gputypes.Backend { return r.backend }

// prepare resolves an optional caller-chosen identifier to the one that
// will be registered.
func (r *Registry[T]) prepare(idIn id.RawID) id.RawID {
	if idIn.IsZero() {
		return r.identity.Process()
	}
	if idIn.Backend() != r.backend {
		panic(fmt.Sprintf("hub: %s%v does not belong to the %s registry", r.kind, idIn, r.backend))
	}
	r.identity.MarkUsed(idIn)
	return idIn
}

// Assign registers v under idIn, or under a fresh identifier when idIn is
// zero, and returns the identifier used.
func (r *Registry[T]) Assign(idIn id.RawID, label string, v T) id.RawID {
	raw := r.prepare(idIn)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage.insert(raw, label, v)
	return raw
}

// AssignError binds idIn (or a fresh identifier) to an error record. Every
// later Get on the identifier fails with an InvalidResourceError carrying
// cause.
func (r *Registry[T]) AssignError(idIn id.RawID, label string, cause error) id.RawID {
	raw := r.prepare(idIn)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage.insertError(raw, label, cause)
	return raw
}

// Get returns the value registered under raw.
func (r *Registry[T]) Get(raw id.RawID) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.storage.get(raw)
}

// Contains reports whether raw names a live value or error record.
func (r *Registry[T]) Contains(raw id.RawID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.storage.lookup(raw) != nil
}

// Label returns the label raw was registered with.
func (r *Registry[T]) Label(raw id.RawID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.storage.label(raw)
}

// Unregister removes raw and frees its identifier. The value is returned
// only if the slot held one (not an error record).
func (r *Registry[T]) Unregister(raw id.RawID) (T, bool) {
	r.mu.Lock()
	v, ok := r.storage.remove(raw)
	r.mu.Unlock()
	r.identity.Free(raw)
	return v, ok
}

// Range calls fn for every live value in index order until fn returns
// false. The read lock is held for the duration, so fn must not call back
// into r with a write.
func (r *Registry[T]) Range(fn func(raw id.RawID, v T) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, e := range r.storage.all() {
		if e.state != occupied {
			continue
		}
		if !fn(id.Zip(uint32(i), e.epoch, r.backend), e.value) {
			return
		}
	}
}

// Values returns a snapshot of the live values in index order.
func (r *Registry[T]) Values() []T {
	var values []T
	r.Range(func(_ id.RawID, v T) bool {
		values = append(values, v)
		return true
	})
	return values
}

// Drain removes every entry, frees all identifiers and returns the live
// values in index order.
func (r *Registry[T]) Drain() []T {
	var values []T
	r.DrainWith(func(v T) { values = append(values, v) })
	return values
}

// DrainWith removes every entry and frees all identifiers, calling fn on
// each live value in index order while the write lock is held. A panic in
// fn leaves the lock released and the already visited identifiers freed.
func (r *Registry[T]) DrainWith(fn func(v T)) {
	var ids []id.RawID
	defer func() {
		for _, raw := range ids {
			r.identity.Free(raw)
		}
	}()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.storage.all() {
		ids = append(ids, id.Zip(uint32(i), e.epoch, r.backend))
		v, ok := e.value, e.state == occupied
		*e = element[T]{}
		if ok {
			fn(v)
		}
	}
}

// Invalidate turns the live values for which match returns true into
// error records carrying cause and returns them in index order. Their
// identifiers stay allocated until unregistered.
func (r *Registry[T]) Invalidate(match func(v T) bool, cause error) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var values []T
	for _, e := range r.storage.all() {
		if e.state != occupied || !match(e.value) {
			continue
		}
		values = append(values, e.value)
		*e = element[T]{state: errored, epoch: e.epoch, label: e.label, cause: cause}
	}
	return values
}

// GenerateReport returns a snapshot of the registry occupancy.
func (r *Registry[T]) GenerateReport() RegistryReport {
	r.mu.RLock()
	kept, errs := r.storage.counts()
	r.mu.RUnlock()
	live, released := r.identity.counts()

	var zero T
	return RegistryReport{
		NumAllocated:        live,
		NumKeptFromUser:     kept,
		NumReleasedFromUser: released,
		NumError:            errs,
		ElementSize:         int(unsafe.Sizeof(zero)),
	}
}
