package wgcore

import (
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// API is implemented by the zero-size marker types that select a backend
// at compile time. Generic operations are instantiated once per API, and
// the instantiations are collected into that backend's CoreTable.
type API interface {
	Variant() gputypes.Backend
}

// Backend markers. A marker exists in every build; only the backends whose
// HAL package is compiled in are registered (see CompiledBackends).
type (
	// Empty is the no-op backend. It is always compiled in.
	Empty struct{}
	// Vulkan is compiled in with the "vulkan" build tag.
	Vulkan struct{}
	// Metal is compiled in with the "metal" build tag on darwin.
	Metal struct{}
	// Dx12 is compiled in with the "dx12" build tag on windows.
	Dx12 struct{}
	// Gles is compiled in with the "gles" build tag on linux and windows.
	Gles struct{}
)

func (Empty) Variant() gputypes.Backend  { return gputypes.BackendEmpty }
func (Vulkan) Variant() gputypes.Backend { return gputypes.BackendVulkan }
func (Metal) Variant() gputypes.Backend  { return gputypes.BackendMetal }
func (Dx12) Variant() gputypes.Backend   { return gputypes.BackendDX12 }
func (Gles) Variant() gputypes.Backend   { return gputypes.BackendGL }

// apiEntry ties a compiled-in backend to its lazily built table and the
// constructor of its capability object.
type apiEntry struct {
	variant    gputypes.Backend
	table      func() *CoreTable
	newBackend func(g *Global) DynBackend
	newHub     func() *Hub
}

// backendPriority is the adapter preference order. Real backends come
// before the no-op fallback.
var backendPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

var apis = gpucontext.NewRegistry[*apiEntry](gpucontext.WithPriority(priorityNames()...))

func priorityNames() []string {
	names := make([]string, len(backendPriority))
	for i, b := range backendPriority {
		names[i] = backendName(b)
	}
	return names
}

func backendName(b gputypes.Backend) string {
	return strings.ToLower(b.String())
}

// registerAPI makes backend A available. It is called from init in the
// per-backend files, each guarded by the build tag that compiles the
// matching HAL package in.
func registerAPI[A API]() {
	var a A
	e := &apiEntry{
		variant:    a.Variant(),
		table:      sync.OnceValue(newCoreTable[A]),
		newBackend: newBackendObject[A],
		newHub:     func() *Hub { return newHub(a.Variant()) },
	}
	apis.Register(backendName(e.variant), func() *apiEntry { return e })
}

func lookupAPI(b gputypes.Backend) (*apiEntry, bool) {
	name := backendName(b)
	if !apis.Has(name) {
		return nil, false
	}
	return apis.Get(name), true
}

// CompiledBackends returns the backends compiled into this build in
// adapter preference order.
func CompiledBackends() []gputypes.Backend {
	var out []gputypes.Backend
	for _, b := range backendPriority {
		if apis.Has(backendName(b)) {
			out = append(out, b)
		}
	}
	return out
}

// PreferredBackend returns the highest priority compiled-in backend.
func PreferredBackend() gputypes.Backend {
	if e := apis.Best(); e != nil {
		return e.variant
	}
	return gputypes.BackendEmpty
}
