package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/cache"
	"github.com/gogpu/wgcore/hub"
	"github.com/gogpu/wgcore/id"
)

// Global is the root of all state: the platform instance, the surfaces
// shared by every backend, one hub per compiled-in backend and the backend
// capability objects.
//
// Every method is safe for concurrent use.
type Global struct {
	instance *Instance
	surfaces *hub.Registry[*Surface]
	hubs     map[gputypes.Backend]*Hub
	backends *Backends
	shaders  *cache.Sharded[string, compiledModule]
}

// New creates a Global with an instance for every requested backend.
// Backends that fail to initialize are logged and skipped.
func New(name string, opts ...GlobalOption) *Global {
	o := defaultGlobalOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newGlobal(newInstance(name, &o))
}

// NewFromHalInstance wraps an existing HAL instance of backend A. The
// Global takes ownership and destroys raw in Destroy.
func NewFromHalInstance[A API](name string, raw hal.Instance) *Global {
	var a A
	if _, ok := lookupAPI(a.Variant()); !ok {
		panic(fmt.Sprintf("wgcore: backend %v is not compiled in", a.Variant()))
	}
	inst := &Instance{
		name: name,
		raw:  map[gputypes.Backend]hal.Instance{a.Variant(): raw},
	}
	return newGlobal(inst)
}

// shaderCacheCapacity is per cache shard.
const shaderCacheCapacity = 32

func newGlobal(inst *Instance) *Global {
	g := &Global{
		instance: inst,
		surfaces: hub.NewRegistry[*Surface](id.KindSurface, gputypes.BackendEmpty),
		hubs:     make(map[gputypes.Backend]*Hub),
		shaders:  cache.NewSharded[string, compiledModule](shaderCacheCapacity, cache.StringHasher),
	}
	objs := make(map[gputypes.Backend]DynBackend)
	for _, b := range CompiledBackends() {
		e, _ := lookupAPI(b)
		g.hubs[b] = e.newHub()
		objs[b] = e.newBackend(g)
	}
	g.backends = &Backends{objs: objs}
	return g
}

// InstanceAsHal returns the HAL instance of backend A, if it initialized.
func InstanceAsHal[A API](g *Global) (hal.Instance, bool) {
	var a A
	raw, ok := g.instance.raw[a.Variant()]
	return raw, ok
}

// ClearBackend destroys every resource in the hub of backend A. Adapters,
// the instance and the surfaces stay alive; surfaces configured on a
// cleared device are unconfigured.
func ClearBackend[A API](g *Global) {
	hubOf[A](g).clear(g.surfaces, false)
}

// Instance returns the platform instance.
func (g *Global) Instance() *Instance { return g.instance }

// Backends returns the container of capability objects.
func (g *Global) Backends() *Backends { return g.backends }

// Backend returns the capability object for the backend raw belongs to.
func (g *Global) Backend(raw id.RawID) DynBackend {
	return g.backends.get(raw)
}

// BackendShared is Backend for callers that keep the object beyond the
// call. Capability objects are shared, so both return the same value.
func (g *Global) BackendShared(raw id.RawID) DynBackend {
	return g.backends.get(raw)
}

// Destroy tears the Global down. Every hub is cleared first, then the HAL
// instances are destroyed, then the surfaces. Destroy panics if a surface
// still has holders added by Retain.
func (g *Global) Destroy() {
	for _, b := range CompiledBackends() {
		g.hubs[b].clear(g.surfaces, true)
	}
	g.instance.destroy()
	g.shaders.Clear()
	g.surfaces.DrainWith(func(s *Surface) {
		if s.refs.Load() != 1 {
			panic("wgcore: surface cannot be destroyed because it is still in use")
		}
		s.destroyRaw()
	})
	Logger().Info("wgcore: global destroyed", "name", g.instance.name)
}

// GlobalReport is the occupancy of every registry of a Global.
type GlobalReport struct {
	Surfaces    hub.RegistryReport `json:"surfaces" yaml:"surfaces"`
	Hubs        []BackendReport    `json:"hubs" yaml:"hubs"`
	ShaderCache cache.Stats        `json:"shader_cache" yaml:"shader_cache"`
}

// BackendReport is the HubReport of one backend.
type BackendReport struct {
	Backend string    `json:"backend" yaml:"backend"`
	Hub     HubReport `json:"hub" yaml:"hub"`
}

// GenerateReport snapshots every registry and the shader cache counters.
// Registries are only read-locked.
func (g *Global) GenerateReport() GlobalReport {
	r := GlobalReport{
		Surfaces:    g.surfaces.GenerateReport(),
		ShaderCache: g.shaders.Stats(),
	}
	for _, b := range CompiledBackends() {
		r.Hubs = append(r.Hubs, BackendReport{
			Backend: b.String(),
			Hub:     g.hubs[b].generateReport(),
		})
	}
	return r
}

// Backends is the set of capability objects, one per compiled-in backend.
type Backends struct {
	objs map[gputypes.Backend]DynBackend
}

func (b *Backends) get(raw id.RawID) DynBackend {
	obj, ok := b.objs[raw.Backend()]
	if !ok {
		panic(fmt.Sprintf("wgcore: identifier %v is not associated with a supported backend", raw))
	}
	return obj
}

// All returns the capability objects in adapter preference order.
func (b *Backends) All() []DynBackend {
	var out []DynBackend
	for _, v := range backendPriority {
		if obj, ok := b.objs[v]; ok {
			out = append(out, obj)
		}
	}
	return out
}
