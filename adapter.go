package wgcore

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

// EnumerateAdapters registers every adapter of every live instance in
// backends (all of them when zero) and returns their identifiers in
// backend preference order.
func (g *Global) EnumerateAdapters(backends gputypes.Backends) []id.AdapterID {
	var ids []id.AdapterID
	for _, b := range g.instance.Backends() {
		if backends != 0 && !backends.Contains(b) {
			continue
		}
		h := g.hubs[b]
		for _, exposed := range g.instance.raw[b].EnumerateAdapters(nil) {
			ids = append(ids, assign(h.adapters, id.AdapterID(0), exposed.Info.Name, &Adapter{raw: exposed}))
		}
	}
	return ids
}

// RequestAdapter picks the adapter that best fits opts and registers it
// under idIn, or a fresh identifier when idIn is zero. Backends are tried
// in preference order; within a backend the device type decides.
func (g *Global) RequestAdapter(opts *RequestAdapterOptions, idIn id.AdapterID) (id.AdapterID, error) {
	if opts == nil {
		opts = &RequestAdapterOptions{}
	}
	var surface *Surface
	if !opts.CompatibleSurface.IsZero() {
		s, err := g.surfaces.Get(opts.CompatibleSurface.Raw())
		if err != nil {
			return 0, err
		}
		surface = s
	}

	for _, b := range g.instance.Backends() {
		if opts.Backends != 0 && !opts.Backends.Contains(b) {
			continue
		}
		if !idIn.IsZero() && idIn.Backend() != b {
			continue
		}
		var hint hal.Surface
		if surface != nil {
			hint = surface.raw[b]
			if hint == nil {
				continue
			}
		}
		exposed := g.instance.raw[b].EnumerateAdapters(hint)
		best := -1
		for i := range exposed {
			if hint != nil && exposed[i].Adapter.SurfaceCapabilities(hint) == nil {
				continue
			}
			if best < 0 || adapterScore(&exposed[i], opts) > adapterScore(&exposed[best], opts) {
				best = i
			}
		}
		for i := range exposed {
			if i != best {
				exposed[i].Adapter.Destroy()
			}
		}
		if best < 0 {
			continue
		}
		a := &Adapter{raw: exposed[best]}
		Logger().Info("wgcore: adapter selected", "name", a.raw.Info.Name, "backend", b)
		return assign(g.hubs[b].adapters, idIn, a.raw.Info.Name, a), nil
	}
	return 0, ErrNoAdapter
}

func adapterScore(e *hal.ExposedAdapter, opts *RequestAdapterOptions) int {
	t := e.Info.DeviceType
	if opts.ForceFallback {
		if t == gputypes.DeviceTypeCPU {
			return 3
		}
		return 0
	}
	switch {
	case opts.PowerPreference == gputypes.PowerPreferenceLowPower && t == gputypes.DeviceTypeIntegratedGPU:
		return 3
	case opts.PowerPreference == gputypes.PowerPreferenceHighPerformance && t == gputypes.DeviceTypeDiscreteGPU:
		return 3
	case t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU:
		return 2
	case t == gputypes.DeviceTypeCPU:
		return 0
	default:
		return 1
	}
}

func adapterGetInfo[A API](g *Global, adapter id.AdapterID) (gputypes.AdapterInfo, error) {
	a, err := resolve[A](hubOf[A](g).adapters, adapter)
	if err != nil {
		return gputypes.AdapterInfo{}, err
	}
	return a.raw.Info, nil
}

func adapterTextureFormatFeatures[A API](g *Global, adapter id.AdapterID, format gputypes.TextureFormat) (hal.TextureFormatCapabilityFlags, error) {
	a, err := resolve[A](hubOf[A](g).adapters, adapter)
	if err != nil {
		return 0, err
	}
	return a.raw.Adapter.TextureFormatCapabilities(format).Flags, nil
}

func adapterFeatures[A API](g *Global, adapter id.AdapterID) (gputypes.Features, error) {
	a, err := resolve[A](hubOf[A](g).adapters, adapter)
	if err != nil {
		return 0, err
	}
	return a.raw.Features, nil
}

func adapterLimits[A API](g *Global, adapter id.AdapterID) (gputypes.Limits, error) {
	a, err := resolve[A](hubOf[A](g).adapters, adapter)
	if err != nil {
		return gputypes.Limits{}, err
	}
	return a.raw.Capabilities.Limits, nil
}

func adapterDownlevelCapabilities[A API](g *Global, adapter id.AdapterID) (hal.DownlevelCapabilities, error) {
	a, err := resolve[A](hubOf[A](g).adapters, adapter)
	if err != nil {
		return hal.DownlevelCapabilities{}, err
	}
	return a.raw.Capabilities.DownlevelCapabilities, nil
}

var processStart = time.Now()

// adapterGetPresentationTimestamp returns the host monotonic clock, which
// is the clock every HAL backend presents against.
func adapterGetPresentationTimestamp[A API](g *Global, adapter id.AdapterID) (time.Duration, error) {
	if _, err := resolve[A](hubOf[A](g).adapters, adapter); err != nil {
		return 0, err
	}
	return time.Since(processStart), nil
}

func adapterDrop[A API](g *Global, adapter id.AdapterID) {
	if a, ok := unregister[A](hubOf[A](g).adapters, adapter); ok {
		a.raw.Adapter.Destroy()
	}
}

func adapterIsSurfaceSupported[A API](g *Global, adapter id.AdapterID, surface id.SurfaceID) (bool, error) {
	a, err := resolve[A](hubOf[A](g).adapters, adapter)
	if err != nil {
		return false, err
	}
	s, err := g.surfaces.Get(surface.Raw())
	if err != nil {
		return false, err
	}
	var av A
	raw, ok := s.raw[av.Variant()]
	if !ok {
		return false, nil
	}
	return a.raw.Adapter.SurfaceCapabilities(raw) != nil, nil
}

func adapterRequestDevice[A API](g *Global, adapter id.AdapterID, desc *DeviceDescriptor, deviceIn id.DeviceID, queueIn id.QueueID) (id.DeviceID, id.QueueID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.DeviceID, id.QueueID, error) {
		label := ""
		if desc != nil {
			label = desc.Label
		}
		return assignError(h.devices, deviceIn, label, err), assignError(h.queues, queueIn, label, err), err
	}

	a, err := resolve[A](h.adapters, adapter)
	if err != nil {
		return fail(err)
	}
	if desc == nil {
		desc = &DeviceDescriptor{}
	}
	if missing := desc.RequiredFeatures &^ a.raw.Features; missing != 0 {
		return fail(&MissingFeaturesError{Missing: missing})
	}
	limits := a.raw.Capabilities.Limits
	if desc.RequiredLimits != nil {
		if err := checkLimits(desc.RequiredLimits, &limits); err != nil {
			return fail(err)
		}
		limits = *desc.RequiredLimits
	}

	open, err := a.raw.Adapter.Open(desc.RequiredFeatures, limits)
	if err != nil {
		return fail(fmt.Errorf("wgcore: open device: %w", err))
	}
	dev := newDevice(a, open, desc, limits)
	dev.id = assign(h.devices, deviceIn, desc.Label, dev)
	dev.queueID = assign(h.queues, queueIn, desc.Label, dev.queue)
	Logger().Info("wgcore: device created", "device", dev.id, "label", desc.Label)
	return dev.id, dev.queueID, nil
}

type limitCheck struct {
	name      string
	requested uint64
	allowed   uint64
	// alignment limits are minimums: smaller is stricter.
	alignment bool
}

func checkLimits(req, have *gputypes.Limits) error {
	checks := []limitCheck{
		{"MaxTextureDimension1D", uint64(req.MaxTextureDimension1D), uint64(have.MaxTextureDimension1D), false},
		{"MaxTextureDimension2D", uint64(req.MaxTextureDimension2D), uint64(have.MaxTextureDimension2D), false},
		{"MaxTextureDimension3D", uint64(req.MaxTextureDimension3D), uint64(have.MaxTextureDimension3D), false},
		{"MaxTextureArrayLayers", uint64(req.MaxTextureArrayLayers), uint64(have.MaxTextureArrayLayers), false},
		{"MaxBindGroups", uint64(req.MaxBindGroups), uint64(have.MaxBindGroups), false},
		{"MaxBindingsPerBindGroup", uint64(req.MaxBindingsPerBindGroup), uint64(have.MaxBindingsPerBindGroup), false},
		{"MaxSampledTexturesPerShaderStage", uint64(req.MaxSampledTexturesPerShaderStage), uint64(have.MaxSampledTexturesPerShaderStage), false},
		{"MaxSamplersPerShaderStage", uint64(req.MaxSamplersPerShaderStage), uint64(have.MaxSamplersPerShaderStage), false},
		{"MaxStorageBuffersPerShaderStage", uint64(req.MaxStorageBuffersPerShaderStage), uint64(have.MaxStorageBuffersPerShaderStage), false},
		{"MaxStorageTexturesPerShaderStage", uint64(req.MaxStorageTexturesPerShaderStage), uint64(have.MaxStorageTexturesPerShaderStage), false},
		{"MaxUniformBuffersPerShaderStage", uint64(req.MaxUniformBuffersPerShaderStage), uint64(have.MaxUniformBuffersPerShaderStage), false},
		{"MaxUniformBufferBindingSize", req.MaxUniformBufferBindingSize, have.MaxUniformBufferBindingSize, false},
		{"MaxStorageBufferBindingSize", req.MaxStorageBufferBindingSize, have.MaxStorageBufferBindingSize, false},
		{"MinUniformBufferOffsetAlignment", uint64(req.MinUniformBufferOffsetAlignment), uint64(have.MinUniformBufferOffsetAlignment), true},
		{"MinStorageBufferOffsetAlignment", uint64(req.MinStorageBufferOffsetAlignment), uint64(have.MinStorageBufferOffsetAlignment), true},
		{"MaxVertexBuffers", uint64(req.MaxVertexBuffers), uint64(have.MaxVertexBuffers), false},
		{"MaxBufferSize", req.MaxBufferSize, have.MaxBufferSize, false},
		{"MaxVertexAttributes", uint64(req.MaxVertexAttributes), uint64(have.MaxVertexAttributes), false},
		{"MaxColorAttachments", uint64(req.MaxColorAttachments), uint64(have.MaxColorAttachments), false},
		{"MaxPushConstantSize", uint64(req.MaxPushConstantSize), uint64(have.MaxPushConstantSize), false},
	}
	for _, c := range checks {
		if c.alignment && c.requested < c.allowed || !c.alignment && c.requested > c.allowed {
			return fmt.Errorf("%w: %s requested %d, adapter allows %d",
				ErrLimitsExceeded, c.name, c.requested, c.allowed)
		}
	}
	return nil
}
