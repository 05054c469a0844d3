// Package binding exposes wgcore to a host runtime through small integer
// resource IDs (rids), the way a script engine hands out handles.
//
// Each op resolves its rid arguments, dispatches through the CoreTable of
// the resource's backend and returns a Result. GPU errors travel inside the
// Result; bad rids and malformed arguments are returned as Go errors.
package binding

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/id"
)

// Rid is a resource ID handed to the host.
type Rid uint32

// Kind names the resource behind a rid.
type Kind string

const (
	KindAdapter         Kind = "webGPUAdapter"
	KindDevice          Kind = "webGPUDevice"
	KindQueue           Kind = "webGPUQueue"
	KindBuffer          Kind = "webGPUBuffer"
	KindBufferMapped    Kind = "webGPUBufferMapped"
	KindSampler         Kind = "webGPUSampler"
	KindBindGroupLayout Kind = "webGPUBindGroupLayout"
)

// ErrBadResource reports a rid that is unknown or of the wrong kind.
var ErrBadResource = errors.New("binding: bad resource id")

type resource struct {
	kind  Kind
	table *wgcore.CoreTable
	raw   id.RawID
	close func()

	// mapped is the live range of a KindBufferMapped resource.
	mapped []byte
}

// Instance owns a Global and the rid table of everything created through
// it.
type Instance struct {
	global *wgcore.Global

	mu        sync.Mutex
	resources map[Rid]*resource
	next      Rid
}

// NewInstance wraps g. The instance does not destroy g.
func NewInstance(g *wgcore.Global) *Instance {
	return &Instance{global: g, resources: make(map[Rid]*resource)}
}

// Global returns the wrapped Global.
func (in *Instance) Global() *wgcore.Global { return in.global }

func (in *Instance) add(r *resource) Rid {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.next++
	in.resources[in.next] = r
	return in.next
}

func (in *Instance) get(rid Rid, kind Kind) (*resource, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	r, ok := in.resources[rid]
	if !ok || r.kind != kind {
		return nil, fmt.Errorf("%w: %d is not a %s", ErrBadResource, rid, kind)
	}
	return r, nil
}

func (in *Instance) take(rid Rid, kind Kind) (*resource, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	r, ok := in.resources[rid]
	if !ok || r.kind != kind {
		return nil, fmt.Errorf("%w: %d is not a %s", ErrBadResource, rid, kind)
	}
	delete(in.resources, rid)
	return r, nil
}

// Kind reports the kind of rid, or false if it is not in the table.
func (in *Instance) Kind(rid Rid) (Kind, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	r, ok := in.resources[rid]
	if !ok {
		return "", false
	}
	return r.kind, true
}

// Close removes rid from the table and drops the resource behind it.
func (in *Instance) Close(rid Rid) error {
	in.mu.Lock()
	r, ok := in.resources[rid]
	delete(in.resources, rid)
	in.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrBadResource, rid)
	}
	if r.close != nil {
		r.close()
	}
	wgcore.Logger().Debug("binding: closed", "rid", rid, "kind", r.kind)
	return nil
}

// Shutdown closes every remaining rid, newest first, so resources go
// before the devices and adapters they were created from.
func (in *Instance) Shutdown() {
	in.mu.Lock()
	rids := make([]Rid, 0, len(in.resources))
	for rid := range in.resources {
		rids = append(rids, rid)
	}
	in.mu.Unlock()
	slices.Sort(rids)
	slices.Reverse(rids)
	for _, rid := range rids {
		_ = in.Close(rid)
	}
}
