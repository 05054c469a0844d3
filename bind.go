package wgcore

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/diag"
	"github.com/gogpu/wgcore/id"
)

var shaderStages = []gputypes.ShaderStage{
	gputypes.ShaderStageVertex,
	gputypes.ShaderStageFragment,
	gputypes.ShaderStageCompute,
}

// stageBindings counts the bindings of each class visible to one stage.
type stageBindings struct {
	uniformBuffers  uint32
	storageBuffers  uint32
	samplers        uint32
	sampledTextures uint32
	storageTextures uint32
}

func bindingTypeCount(e *gputypes.BindGroupLayoutEntry) int {
	n := 0
	if e.Buffer != nil {
		n++
	}
	if e.Sampler != nil {
		n++
	}
	if e.Texture != nil {
		n++
	}
	if e.StorageTexture != nil {
		n++
	}
	return n
}

func writableStorage(e *gputypes.BindGroupLayoutEntry) bool {
	if e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeStorage {
		return true
	}
	return e.StorageTexture != nil && e.StorageTexture.Access != gputypes.StorageTextureAccessReadOnly
}

// validateBindGroupLayout checks every entry and then the per-stage totals.
// Every failure is captured; validation does not stop at the first one.
func validateBindGroupLayout(ctx *diag.Context, d *Device, entries []gputypes.BindGroupLayoutEntry) *diag.Error {
	wrap := diag.CreateBindGroupLayout
	return ctx.TryBlock(func() *diag.Error {
		var failed *diag.Error
		seen := make(map[uint32]bool, len(entries))
		var stages [3]stageBindings
		var dynUniform, dynStorage uint32

		tok := ctx.Enter("entries")
		for i := range entries {
			e := &entries[i]
			ctx.Index(i)
			if seen[e.Binding] {
				failed = ctx.Report(wrap(fmt.Errorf("%w: %d", ErrDuplicateBinding, e.Binding)))
			}
			seen[e.Binding] = true
			if e.Binding >= d.limits.MaxBindingsPerBindGroup {
				failed = ctx.Report(wrap(fmt.Errorf("%w: binding %d, limit %d", ErrTooManyBindings, e.Binding, d.limits.MaxBindingsPerBindGroup)))
			}
			if n := bindingTypeCount(e); n != 1 {
				failed = ctx.Report(wrap(fmt.Errorf("%w: binding %d sets %d", ErrBindingType, e.Binding, n)))
				continue
			}

			vis := ctx.Enter("visibility")
			if e.Visibility&^gputypes.ShaderStagesAll != 0 {
				failed = ctx.Report(wrap(fmt.Errorf("%w: %#x", ErrVisibility, uint32(e.Visibility))))
			}
			if writableStorage(e) && e.Visibility&gputypes.ShaderStageVertex != 0 {
				failed = ctx.Report(wrap(fmt.Errorf("%w: writable storage is not allowed in the vertex stage", ErrVisibility)))
			}
			if writableStorage(e) && e.Visibility&gputypes.ShaderStageFragment != 0 {
				if err := d.requireDownlevel(hal.DownlevelFlagsFragmentWritableStorage); err != nil {
					failed = ctx.Report(diag.MissingDownlevelFlags(err))
				}
			}
			ctx.Leave(vis)

			if e.Buffer != nil && e.Buffer.HasDynamicOffset {
				if e.Buffer.Type == gputypes.BufferBindingTypeUniform {
					dynUniform++
				} else {
					dynStorage++
				}
			}
			for s, stage := range shaderStages {
				if e.Visibility&stage == 0 {
					continue
				}
				c := &stages[s]
				switch {
				case e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeUniform:
					c.uniformBuffers++
				case e.Buffer != nil:
					c.storageBuffers++
				case e.Sampler != nil:
					c.samplers++
				case e.Texture != nil:
					c.sampledTextures++
				case e.StorageTexture != nil:
					c.storageTextures++
				}
			}
		}
		ctx.Leave(tok)

		l := d.limits
		for s, stage := range shaderStages {
			c := stages[s]
			for _, check := range []struct {
				what        string
				have, limit uint32
			}{
				{"uniform buffers", c.uniformBuffers, l.MaxUniformBuffersPerShaderStage},
				{"storage buffers", c.storageBuffers, l.MaxStorageBuffersPerShaderStage},
				{"samplers", c.samplers, l.MaxSamplersPerShaderStage},
				{"sampled textures", c.sampledTextures, l.MaxSampledTexturesPerShaderStage},
				{"storage textures", c.storageTextures, l.MaxStorageTexturesPerShaderStage},
			} {
				if check.have > check.limit {
					failed = ctx.Report(wrap(fmt.Errorf("%w: %d %s in stage %v, limit %d",
						ErrTooManyBindings, check.have, check.what, stage, check.limit)))
				}
			}
		}
		if dynUniform > l.MaxDynamicUniformBuffersPerPipelineLayout {
			failed = ctx.Report(wrap(fmt.Errorf("%w: %d dynamic uniform buffers", ErrTooManyBindings, dynUniform)))
		}
		if dynStorage > l.MaxDynamicStorageBuffersPerPipelineLayout {
			failed = ctx.Report(wrap(fmt.Errorf("%w: %d dynamic storage buffers", ErrTooManyBindings, dynStorage)))
		}
		return failed
	})
}

// validationError drains ctx into a ValidationError.
func validationError(op, label string, ctx *diag.Context) error {
	return &ValidationError{Op: op, Label: label, Records: diag.Errors(ctx.Drain())}
}

func deviceCreateBindGroupLayout[A API](g *Global, device id.DeviceID, desc *BindGroupLayoutDescriptor, idIn id.BindGroupLayoutID) (id.BindGroupLayoutID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.BindGroupLayoutID, error) {
		return assignError(h.bindGroupLayouts, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	l, err := createBindGroupLayout(d, desc.Label, desc.Entries)
	if err != nil {
		return fail(err)
	}
	return assign(h.bindGroupLayouts, idIn, desc.Label, l), nil
}

func createBindGroupLayout(d *Device, label string, entries []gputypes.BindGroupLayoutEntry) (*BindGroupLayout, error) {
	ctx := diag.New()
	if validateBindGroupLayout(ctx, d, entries) != nil {
		return nil, validationError("create bind group layout", label, ctx)
	}
	raw, err := d.raw.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: label, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("wgcore: create bind group layout: %w", err)
	}
	return &BindGroupLayout{device: d, raw: raw, entries: entries}, nil
}

func bindGroupLayoutLabel[A API](g *Global, layout id.BindGroupLayoutID) string {
	return labelOf[A](hubOf[A](g).bindGroupLayouts, layout)
}

func bindGroupLayoutDrop[A API](g *Global, layout id.BindGroupLayoutID) {
	if l, ok := unregister[A](hubOf[A](g).bindGroupLayouts, layout); ok {
		l.device.raw.DestroyBindGroupLayout(l.raw)
	}
}

var errPushConstantRange = errors.New("wgcore: invalid push constant range")

func validatePipelineLayout[A API](ctx *diag.Context, h *Hub, d *Device, desc *PipelineLayoutDescriptor) ([]*BindGroupLayout, *diag.Error) {
	wrap := diag.CreatePipelineLayout
	return diag.Try(ctx, func() ([]*BindGroupLayout, *diag.Error) {
		var failed *diag.Error
		tok := ctx.Enter("bindGroupLayouts")
		if n := uint32(len(desc.BindGroupLayouts)); n > d.limits.MaxBindGroups {
			failed = ctx.Report(wrap(fmt.Errorf("%w: %d, limit %d", ErrTooManyBindGroups, n, d.limits.MaxBindGroups)))
		}
		layouts := make([]*BindGroupLayout, len(desc.BindGroupLayouts))
		for i, lid := range desc.BindGroupLayouts {
			ctx.Index(i)
			l, err := resolve[A](h.bindGroupLayouts, lid)
			if l, e := diag.Result(ctx, l, err, wrap); e != nil {
				failed = e
			} else if l.device != d {
				failed = ctx.Report(wrap(ErrDeviceMismatch))
			} else {
				layouts[i] = l
			}
		}
		ctx.Leave(tok)

		if len(desc.PushConstantRanges) > 0 {
			tok := ctx.Enter("pushConstantRanges")
			if err := d.requireFeatures(gputypes.Features(gputypes.FeaturePushConstants)); err != nil {
				failed = ctx.Report(diag.MissingFeatures(err))
			}
			var used gputypes.ShaderStages
			for i, r := range desc.PushConstantRanges {
				ctx.Index(i)
				switch {
				case r.Range.Start%4 != 0 || r.Range.End%4 != 0 || r.Range.End <= r.Range.Start:
					failed = ctx.Report(wrap(fmt.Errorf("%w: %d..%d", errPushConstantRange, r.Range.Start, r.Range.End)))
				case r.Range.End > d.limits.MaxPushConstantSize:
					failed = ctx.Report(wrap(fmt.Errorf("%w: end %d exceeds %d", errPushConstantRange, r.Range.End, d.limits.MaxPushConstantSize)))
				case r.Stages&used != 0:
					failed = ctx.Report(wrap(fmt.Errorf("%w: stages %v appear in more than one range", errPushConstantRange, r.Stages&used)))
				}
				used |= r.Stages
			}
			ctx.Leave(tok)
		}
		return layouts, failed
	})
}

func deviceCreatePipelineLayout[A API](g *Global, device id.DeviceID, desc *PipelineLayoutDescriptor, idIn id.PipelineLayoutID) (id.PipelineLayoutID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.PipelineLayoutID, error) {
		return assignError(h.pipelineLayouts, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	ctx := diag.New()
	layouts, e := validatePipelineLayout[A](ctx, h, d, desc)
	if e != nil {
		return fail(validationError("create pipeline layout", desc.Label, ctx))
	}
	pl, err := createPipelineLayout(d, desc.Label, desc.BindGroupLayouts, layouts, desc.PushConstantRanges)
	if err != nil {
		return fail(err)
	}
	return assign(h.pipelineLayouts, idIn, desc.Label, pl), nil
}

func createPipelineLayout(d *Device, label string, groups []id.BindGroupLayoutID, layouts []*BindGroupLayout, pcr []hal.PushConstantRange) (*PipelineLayout, error) {
	raws := make([]hal.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		raws[i] = l.raw
	}
	raw, err := d.raw.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:              label,
		BindGroupLayouts:   raws,
		PushConstantRanges: pcr,
	})
	if err != nil {
		return nil, fmt.Errorf("wgcore: create pipeline layout: %w", err)
	}
	return &PipelineLayout{device: d, raw: raw, groups: groups, layouts: layouts}, nil
}

func pipelineLayoutLabel[A API](g *Global, layout id.PipelineLayoutID) string {
	return labelOf[A](hubOf[A](g).pipelineLayouts, layout)
}

func pipelineLayoutDrop[A API](g *Global, layout id.PipelineLayoutID) {
	if l, ok := unregister[A](hubOf[A](g).pipelineLayouts, layout); ok {
		l.device.raw.DestroyPipelineLayout(l.raw)
	}
}

func deviceCreateBindGroup[A API](g *Global, device id.DeviceID, desc *BindGroupDescriptor, idIn id.BindGroupID) (id.BindGroupID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.BindGroupID, error) {
		return assignError(h.bindGroups, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	layout, err := resolve[A](h.bindGroupLayouts, desc.Layout)
	if err != nil {
		return fail(err)
	}
	if layout.device != d {
		return fail(ErrDeviceMismatch)
	}
	if len(desc.Entries) != len(layout.entries) {
		return fail(fmt.Errorf("%w: %d entries for a layout with %d", ErrBindingMismatch, len(desc.Entries), len(layout.entries)))
	}

	group := &BindGroup{device: d, layout: layout}
	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	seen := make(map[uint32]bool, len(desc.Entries))
	for i := range desc.Entries {
		e := &desc.Entries[i]
		if seen[e.Binding] {
			return fail(fmt.Errorf("entries[%d]: %w: %d", i, ErrDuplicateBinding, e.Binding))
		}
		seen[e.Binding] = true
		le, ok := layout.entry(e.Binding)
		if !ok {
			return fail(fmt.Errorf("entries[%d]: %w: binding %d is not in the layout", i, ErrBindingMismatch, e.Binding))
		}
		res, err := bindResource[A](h, d, group, e, &le)
		if err != nil {
			return fail(fmt.Errorf("entries[%d]: %w", i, err))
		}
		entries[i] = gputypes.BindGroupEntry{Binding: e.Binding, Resource: res}
	}

	raw, err := d.raw.CreateBindGroup(&hal.BindGroupDescriptor{Label: desc.Label, Layout: layout.raw, Entries: entries})
	if err != nil {
		return fail(fmt.Errorf("wgcore: create bind group: %w", err))
	}
	group.raw = raw
	return assign(h.bindGroups, idIn, desc.Label, group), nil
}

// bindResource validates one entry against its layout slot and returns the
// HAL resource handle. Bound buffers and textures are recorded on group so
// that submissions can track them.
func bindResource[A API](h *Hub, d *Device, group *BindGroup, e *BindGroupEntry, le *gputypes.BindGroupLayoutEntry) (gputypes.BindingResource, error) {
	switch {
	case e.Buffer != nil:
		if le.Buffer == nil {
			return nil, fmt.Errorf("%w: binding %d is not a buffer", ErrBindingMismatch, e.Binding)
		}
		b, err := resolve[A](h.buffers, e.Buffer.Buffer)
		if err != nil {
			return nil, err
		}
		if b.device != d {
			return nil, ErrDeviceMismatch
		}
		need, align, maxSize := gputypes.BufferUsageStorage, d.limits.MinStorageBufferOffsetAlignment, d.limits.MaxStorageBufferBindingSize
		if le.Buffer.Type == gputypes.BufferBindingTypeUniform {
			need, align, maxSize = gputypes.BufferUsageUniform, d.limits.MinUniformBufferOffsetAlignment, d.limits.MaxUniformBufferBindingSize
		}
		if !b.usage.Contains(need) {
			return nil, &UsageError{Kind: id.KindBuffer, ID: e.Buffer.Buffer.Raw(), Actual: uint64(b.usage), Expected: uint64(need)}
		}
		if align != 0 && e.Buffer.Offset%uint64(align) != 0 {
			return nil, fmt.Errorf("%w: offset %d, alignment %d", ErrUnaligned, e.Buffer.Offset, align)
		}
		if e.Buffer.Offset > b.size {
			return nil, fmt.Errorf("%w: offset %d past size %d", ErrOutOfBounds, e.Buffer.Offset, b.size)
		}
		size := e.Buffer.Size
		if size == 0 {
			size = b.size - e.Buffer.Offset
		}
		if e.Buffer.Offset+size > b.size {
			return nil, fmt.Errorf("%w: range %d..%d past size %d", ErrOutOfBounds, e.Buffer.Offset, e.Buffer.Offset+size, b.size)
		}
		if size > maxSize {
			return nil, fmt.Errorf("%w: binding size %d exceeds %d", ErrInvalidSize, size, maxSize)
		}
		if size < le.Buffer.MinBindingSize {
			return nil, fmt.Errorf("%w: binding size %d below minimum %d", ErrInvalidSize, size, le.Buffer.MinBindingSize)
		}
		group.buffers = append(group.buffers, b)
		return gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: e.Buffer.Offset, Size: size}, nil

	case !e.Sampler.IsZero():
		if le.Sampler == nil {
			return nil, fmt.Errorf("%w: binding %d is not a sampler", ErrBindingMismatch, e.Binding)
		}
		s, err := resolve[A](h.samplers, e.Sampler)
		if err != nil {
			return nil, err
		}
		if s.device != d {
			return nil, ErrDeviceMismatch
		}
		comparison := s.desc.Compare != gputypes.CompareFunctionUndefined
		if comparison != (le.Sampler.Type == gputypes.SamplerBindingTypeComparison) {
			return nil, fmt.Errorf("%w: sampler comparison does not match binding %d", ErrBindingMismatch, e.Binding)
		}
		return gputypes.SamplerBinding{Sampler: s.raw.NativeHandle()}, nil

	case !e.TextureView.IsZero():
		v, err := resolve[A](h.textureViews, e.TextureView)
		if err != nil {
			return nil, err
		}
		if v.device != d {
			return nil, ErrDeviceMismatch
		}
		t := v.texture
		switch {
		case le.Texture != nil:
			if !t.desc.Usage.Contains(gputypes.TextureUsageTextureBinding) {
				return nil, &UsageError{Kind: id.KindTexture, Actual: uint64(t.desc.Usage), Expected: uint64(gputypes.TextureUsageTextureBinding)}
			}
			if le.Texture.ViewDimension != gputypes.TextureViewDimensionUndefined && le.Texture.ViewDimension != v.desc.Dimension {
				return nil, fmt.Errorf("%w: view dimension %v, binding expects %v", ErrBindingMismatch, v.desc.Dimension, le.Texture.ViewDimension)
			}
			if le.Texture.Multisampled != (t.desc.SampleCount > 1) {
				return nil, fmt.Errorf("%w: multisampling does not match binding %d", ErrBindingMismatch, e.Binding)
			}
		case le.StorageTexture != nil:
			if !t.desc.Usage.Contains(gputypes.TextureUsageStorageBinding) {
				return nil, &UsageError{Kind: id.KindTexture, Actual: uint64(t.desc.Usage), Expected: uint64(gputypes.TextureUsageStorageBinding)}
			}
			if le.StorageTexture.Format != v.desc.Format {
				return nil, fmt.Errorf("%w: view format %v, binding expects %v", ErrFormat, v.desc.Format, le.StorageTexture.Format)
			}
		default:
			return nil, fmt.Errorf("%w: binding %d is not a texture", ErrBindingMismatch, e.Binding)
		}
		group.textures = append(group.textures, t)
		return gputypes.TextureViewBinding{TextureView: v.raw.NativeHandle()}, nil
	}
	return nil, fmt.Errorf("%w: entry for binding %d sets no resource", ErrBindingType, e.Binding)
}

func bindGroupLabel[A API](g *Global, group id.BindGroupID) string {
	return labelOf[A](hubOf[A](g).bindGroups, group)
}

func bindGroupDrop[A API](g *Global, group id.BindGroupID) {
	if b, ok := unregister[A](hubOf[A](g).bindGroups, group); ok {
		b.device.raw.DestroyBindGroup(b.raw)
	}
}
