package wgcore

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Instance holds one HAL instance per backend that initialized.
type Instance struct {
	name string
	raw  map[gputypes.Backend]hal.Instance
}

func newInstance(name string, o *globalOptions) *Instance {
	inst := &Instance{name: name, raw: make(map[gputypes.Backend]hal.Instance)}
	desc := &hal.InstanceDescriptor{
		Backends:           o.backendSet(),
		Flags:              o.flags,
		Dx12ShaderCompiler: o.dx12Compiler,
		GLBackend:          o.glBackend,
	}
	for _, b := range o.backends {
		if _, ok := lookupAPI(b); !ok {
			Logger().Warn("wgcore: backend not compiled in", "backend", b)
			continue
		}
		backend, ok := hal.GetBackend(b)
		if !ok {
			Logger().Warn("wgcore: no HAL registered", "backend", b)
			continue
		}
		raw, err := backend.CreateInstance(desc)
		if err != nil {
			Logger().Warn("wgcore: failed to create instance", "backend", b, "err", err)
			continue
		}
		inst.raw[b] = raw
		Logger().Info("wgcore: instance created", "name", name, "backend", b)
	}
	return inst
}

// Backends returns the backends that have a live HAL instance.
func (i *Instance) Backends() []gputypes.Backend {
	var out []gputypes.Backend
	for _, b := range backendPriority {
		if _, ok := i.raw[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (i *Instance) destroy() {
	for _, b := range i.Backends() {
		i.raw[b].Destroy()
		delete(i.raw, b)
	}
}
