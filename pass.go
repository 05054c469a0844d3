package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

type passOp uint8

const (
	opSetPipeline passOp = iota
	opSetBindGroup
	opSetVertexBuffer
	opSetIndexBuffer
	opDraw
	opDrawIndexed
	opSetViewport
	opSetScissorRect
	opSetBlendConstant
	opSetStencilReference
	opDrawIndirect
	opDrawIndexedIndirect
	opExecuteBundle
	opDispatch
	opDispatchIndirect
)

var passOpNames = [...]string{
	opSetPipeline:         "SetPipeline",
	opSetBindGroup:        "SetBindGroup",
	opSetVertexBuffer:     "SetVertexBuffer",
	opSetIndexBuffer:      "SetIndexBuffer",
	opDraw:                "Draw",
	opDrawIndexed:         "DrawIndexed",
	opSetViewport:         "SetViewport",
	opSetScissorRect:      "SetScissorRect",
	opSetBlendConstant:    "SetBlendConstant",
	opSetStencilReference: "SetStencilReference",
	opDrawIndirect:        "DrawIndirect",
	opDrawIndexedIndirect: "DrawIndexedIndirect",
	opExecuteBundle:       "ExecuteBundle",
	opDispatch:            "Dispatch",
	opDispatchIndirect:    "DispatchIndirect",
}

func (o passOp) String() string {
	if int(o) < len(passOpNames) {
		return passOpNames[o]
	}
	return "Unknown"
}

// passCommand is one recorded pass command. Identifiers are resolved when
// the pass is run, not when it is recorded.
type passCommand struct {
	op      passOp
	target  id.RawID
	index   uint32
	offset  uint64
	offsets []uint32
	format  gputypes.IndexFormat
	args    [5]uint32
	base    int32
	floats  [6]float32
	color   gputypes.Color
}

// renderRecorder records the commands shared by render passes and render
// bundles.
type renderRecorder struct {
	commands []passCommand
}

func (r *renderRecorder) SetPipeline(pipeline id.RenderPipelineID) {
	r.commands = append(r.commands, passCommand{op: opSetPipeline, target: pipeline.Raw()})
}

func (r *renderRecorder) SetBindGroup(index uint32, group id.BindGroupID, offsets []uint32) {
	r.commands = append(r.commands, passCommand{op: opSetBindGroup, index: index, target: group.Raw(), offsets: append([]uint32(nil), offsets...)})
}

func (r *renderRecorder) SetVertexBuffer(slot uint32, buffer id.BufferID, offset uint64) {
	r.commands = append(r.commands, passCommand{op: opSetVertexBuffer, index: slot, target: buffer.Raw(), offset: offset})
}

func (r *renderRecorder) SetIndexBuffer(buffer id.BufferID, format gputypes.IndexFormat, offset uint64) {
	r.commands = append(r.commands, passCommand{op: opSetIndexBuffer, target: buffer.Raw(), format: format, offset: offset})
}

func (r *renderRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.commands = append(r.commands, passCommand{op: opDraw, args: [5]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (r *renderRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	r.commands = append(r.commands, passCommand{op: opDrawIndexed, args: [5]uint32{indexCount, instanceCount, firstIndex, firstInstance}, base: baseVertex})
}

// RenderPass records render commands. Recording never fails; the commands
// are validated when CoreTable.CommandEncoderRunRenderPass replays them.
type RenderPass struct {
	renderRecorder
}

func (p *RenderPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.commands = append(p.commands, passCommand{op: opSetViewport, floats: [6]float32{x, y, width, height, minDepth, maxDepth}})
}

func (p *RenderPass) SetScissorRect(x, y, width, height uint32) {
	p.commands = append(p.commands, passCommand{op: opSetScissorRect, args: [5]uint32{x, y, width, height}})
}

func (p *RenderPass) SetBlendConstant(color gputypes.Color) {
	p.commands = append(p.commands, passCommand{op: opSetBlendConstant, color: color})
}

func (p *RenderPass) SetStencilReference(reference uint32) {
	p.commands = append(p.commands, passCommand{op: opSetStencilReference, args: [5]uint32{reference}})
}

func (p *RenderPass) DrawIndirect(buffer id.BufferID, offset uint64) {
	p.commands = append(p.commands, passCommand{op: opDrawIndirect, target: buffer.Raw(), offset: offset})
}

func (p *RenderPass) DrawIndexedIndirect(buffer id.BufferID, offset uint64) {
	p.commands = append(p.commands, passCommand{op: opDrawIndexedIndirect, target: buffer.Raw(), offset: offset})
}

func (p *RenderPass) ExecuteBundles(bundles ...id.RenderBundleID) {
	for _, b := range bundles {
		p.commands = append(p.commands, passCommand{op: opExecuteBundle, target: b.Raw()})
	}
}

// ComputePass records compute commands.
type ComputePass struct {
	commands []passCommand
}

func (p *ComputePass) SetPipeline(pipeline id.ComputePipelineID) {
	p.commands = append(p.commands, passCommand{op: opSetPipeline, target: pipeline.Raw()})
}

func (p *ComputePass) SetBindGroup(index uint32, group id.BindGroupID, offsets []uint32) {
	p.commands = append(p.commands, passCommand{op: opSetBindGroup, index: index, target: group.Raw(), offsets: append([]uint32(nil), offsets...)})
}

func (p *ComputePass) Dispatch(x, y, z uint32) {
	p.commands = append(p.commands, passCommand{op: opDispatch, args: [5]uint32{x, y, z}})
}

func (p *ComputePass) DispatchIndirect(buffer id.BufferID, offset uint64) {
	p.commands = append(p.commands, passCommand{op: opDispatchIndirect, target: buffer.Raw(), offset: offset})
}

// renderTarget is what render passes and render bundles have in common.
type renderTarget interface {
	SetPipeline(pipeline hal.RenderPipeline)
	SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32)
	SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64)
	SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
}

// replayer validates recorded commands and forwards them to the HAL.
type replayer[A API] struct {
	h        *Hub
	d        *Device
	buffers  []*Buffer
	textures []*Texture

	pipelineSet bool
	indexSet    bool
}

func (r *replayer[A]) buffer(raw id.RawID, need gputypes.BufferUsage) (*Buffer, error) {
	b, err := resolve[A](r.h.buffers, id.FromRaw[id.Buffer](raw))
	if err != nil {
		return nil, err
	}
	if b.device != r.d {
		return nil, ErrDeviceMismatch
	}
	if err := requireBufferUsage(b, raw, need); err != nil {
		return nil, err
	}
	if b.isDestroyed() {
		return nil, ErrDestroyed
	}
	r.buffers = append(r.buffers, b)
	return b, nil
}

func (b *Buffer) isDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

func (r *replayer[A]) bindGroup(c *passCommand) (*BindGroup, error) {
	if c.index >= r.d.limits.MaxBindGroups {
		return nil, fmt.Errorf("%w: bind group index %d, limit %d", ErrTooManyBindGroups, c.index, r.d.limits.MaxBindGroups)
	}
	g, err := resolve[A](r.h.bindGroups, id.FromRaw[id.BindGroup](c.target))
	if err != nil {
		return nil, err
	}
	if g.device != r.d {
		return nil, ErrDeviceMismatch
	}
	var dynamic []*gputypes.BufferBindingLayout
	for i := range g.layout.entries {
		if b := g.layout.entries[i].Buffer; b != nil && b.HasDynamicOffset {
			dynamic = append(dynamic, b)
		}
	}
	if len(dynamic) != len(c.offsets) {
		return nil, fmt.Errorf("%w: %d dynamic offsets for %d dynamic bindings", ErrBindingMismatch, len(c.offsets), len(dynamic))
	}
	for i, off := range c.offsets {
		align := r.d.limits.MinStorageBufferOffsetAlignment
		if dynamic[i].Type == gputypes.BufferBindingTypeUniform {
			align = r.d.limits.MinUniformBufferOffsetAlignment
		}
		if align != 0 && off%align != 0 {
			return nil, fmt.Errorf("%w: dynamic offset %d, alignment %d", ErrUnaligned, off, align)
		}
	}
	r.buffers = append(r.buffers, g.buffers...)
	r.textures = append(r.textures, g.textures...)
	return g, nil
}

// render replays one command shared by passes and bundles.
func (r *replayer[A]) render(t renderTarget, c *passCommand) error {
	switch c.op {
	case opSetPipeline:
		p, err := resolve[A](r.h.renderPipelines, id.FromRaw[id.RenderPipeline](c.target))
		if err != nil {
			return err
		}
		if p.device != r.d {
			return ErrDeviceMismatch
		}
		t.SetPipeline(p.raw)
		r.pipelineSet = true
	case opSetBindGroup:
		g, err := r.bindGroup(c)
		if err != nil {
			return err
		}
		t.SetBindGroup(c.index, g.raw, c.offsets)
	case opSetVertexBuffer:
		if c.index >= r.d.limits.MaxVertexBuffers {
			return fmt.Errorf("%w: vertex buffer slot %d, limit %d", ErrLimitsExceeded, c.index, r.d.limits.MaxVertexBuffers)
		}
		b, err := r.buffer(c.target, gputypes.BufferUsageVertex)
		if err != nil {
			return err
		}
		if c.offset > b.size {
			return fmt.Errorf("%w: vertex buffer offset %d past size %d", ErrOutOfBounds, c.offset, b.size)
		}
		t.SetVertexBuffer(c.index, b.raw, c.offset)
	case opSetIndexBuffer:
		b, err := r.buffer(c.target, gputypes.BufferUsageIndex)
		if err != nil {
			return err
		}
		if c.format != gputypes.IndexFormatUint16 && c.format != gputypes.IndexFormatUint32 {
			return fmt.Errorf("%w: index format %v", ErrFormat, c.format)
		}
		if c.offset > b.size {
			return fmt.Errorf("%w: index buffer offset %d past size %d", ErrOutOfBounds, c.offset, b.size)
		}
		t.SetIndexBuffer(b.raw, c.format, c.offset)
		r.indexSet = true
	case opDraw:
		if !r.pipelineSet {
			return fmt.Errorf("%w: draw without a pipeline", ErrEncoderState)
		}
		t.Draw(c.args[0], c.args[1], c.args[2], c.args[3])
	case opDrawIndexed:
		if !r.pipelineSet || !r.indexSet {
			return fmt.Errorf("%w: indexed draw needs a pipeline and an index buffer", ErrEncoderState)
		}
		t.DrawIndexed(c.args[0], c.args[1], c.args[2], c.base, c.args[3])
	default:
		return fmt.Errorf("%w: %v is not allowed here", ErrEncoderState, c.op)
	}
	return nil
}

func (r *replayer[A]) renderPass(pass hal.RenderPassEncoder, c *passCommand) error {
	switch c.op {
	case opSetViewport:
		f := c.floats
		if f[2] < 0 || f[3] < 0 || f[4] < 0 || f[5] > 1 || f[4] > f[5] {
			return fmt.Errorf("%w: viewport %v", ErrOutOfBounds, f)
		}
		pass.SetViewport(f[0], f[1], f[2], f[3], f[4], f[5])
	case opSetScissorRect:
		pass.SetScissorRect(c.args[0], c.args[1], c.args[2], c.args[3])
	case opSetBlendConstant:
		pass.SetBlendConstant(&c.color)
	case opSetStencilReference:
		pass.SetStencilReference(c.args[0])
	case opDrawIndirect, opDrawIndexedIndirect:
		if !r.pipelineSet {
			return fmt.Errorf("%w: draw without a pipeline", ErrEncoderState)
		}
		b, err := r.buffer(c.target, gputypes.BufferUsageIndirect)
		if err != nil {
			return err
		}
		if c.offset%copyBufferAlignment != 0 {
			return fmt.Errorf("%w: indirect offset %d", ErrUnaligned, c.offset)
		}
		if c.op == opDrawIndirect {
			pass.DrawIndirect(b.raw, c.offset)
		} else {
			if !r.indexSet {
				return fmt.Errorf("%w: indexed draw without an index buffer", ErrEncoderState)
			}
			pass.DrawIndexedIndirect(b.raw, c.offset)
		}
	case opExecuteBundle:
		b, err := resolve[A](r.h.renderBundles, id.FromRaw[id.RenderBundle](c.target))
		if err != nil {
			return err
		}
		if b.device != r.d {
			return ErrDeviceMismatch
		}
		pass.ExecuteBundle(b.raw)
		// Bundles reset pass state.
		r.pipelineSet, r.indexSet = false, false
	default:
		return r.render(pass, c)
	}
	return nil
}

func (r *replayer[A]) view(raw id.TextureViewID) (*TextureView, error) {
	v, err := resolve[A](r.h.textureViews, raw)
	if err != nil {
		return nil, err
	}
	if v.device != r.d {
		return nil, ErrDeviceMismatch
	}
	if err := requireTextureUsage(v.texture, 0, gputypes.TextureUsageRenderAttachment); err != nil {
		return nil, err
	}
	r.textures = append(r.textures, v.texture)
	return v, nil
}

func (r *replayer[A]) renderPassDescriptor(desc *RenderPassDescriptor) (*hal.RenderPassDescriptor, error) {
	if len(desc.ColorAttachments) == 0 && desc.DepthStencilAttachment == nil {
		return nil, fmt.Errorf("%w: render pass has no attachments", ErrInvalidUsage)
	}
	if n := uint32(len(desc.ColorAttachments)); n > r.d.limits.MaxColorAttachments {
		return nil, fmt.Errorf("%w: %d color attachments, limit %d", ErrLimitsExceeded, n, r.d.limits.MaxColorAttachments)
	}
	out := &hal.RenderPassDescriptor{Label: desc.Label}
	var extent *Extent3D
	var samples uint32
	sameShape := func(v *TextureView) error {
		e := mipExtent(v.texture, v.desc.BaseMipLevel)
		if extent == nil {
			extent, samples = &e, v.texture.desc.SampleCount
			return nil
		}
		if e.Width != extent.Width || e.Height != extent.Height {
			return fmt.Errorf("%w: attachment size %dx%d, expected %dx%d", ErrInvalidSize, e.Width, e.Height, extent.Width, extent.Height)
		}
		if v.texture.desc.SampleCount != samples {
			return fmt.Errorf("%w: attachment sample count %d, expected %d", ErrSampleCount, v.texture.desc.SampleCount, samples)
		}
		return nil
	}
	for i, a := range desc.ColorAttachments {
		v, err := r.view(a.View)
		if err != nil {
			return nil, fmt.Errorf("colorAttachments[%d]: %w", i, err)
		}
		if err := sameShape(v); err != nil {
			return nil, fmt.Errorf("colorAttachments[%d]: %w", i, err)
		}
		ca := hal.RenderPassColorAttachment{View: v.raw, LoadOp: a.LoadOp, StoreOp: a.StoreOp, ClearValue: a.ClearValue}
		if !a.ResolveTarget.IsZero() {
			rv, err := r.view(a.ResolveTarget)
			if err != nil {
				return nil, fmt.Errorf("colorAttachments[%d].resolveTarget: %w", i, err)
			}
			if v.texture.desc.SampleCount == 1 || rv.texture.desc.SampleCount != 1 {
				return nil, fmt.Errorf("colorAttachments[%d].resolveTarget: %w: resolve needs a multisampled source and single-sampled target", i, ErrSampleCount)
			}
			ca.ResolveTarget = rv.raw
		}
		out.ColorAttachments = append(out.ColorAttachments, ca)
	}
	if ds := desc.DepthStencilAttachment; ds != nil {
		v, err := r.view(ds.View)
		if err != nil {
			return nil, fmt.Errorf("depthStencilAttachment: %w", err)
		}
		if !v.desc.Format.IsDepthStencil() {
			return nil, fmt.Errorf("depthStencilAttachment: %w: %v", ErrFormat, v.desc.Format)
		}
		if err := sameShape(v); err != nil {
			return nil, fmt.Errorf("depthStencilAttachment: %w", err)
		}
		out.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              v.raw,
			DepthLoadOp:       ds.DepthLoadOp,
			DepthStoreOp:      ds.DepthStoreOp,
			DepthClearValue:   ds.DepthClearValue,
			DepthReadOnly:     ds.DepthReadOnly,
			StencilLoadOp:     ds.StencilLoadOp,
			StencilStoreOp:    ds.StencilStoreOp,
			StencilClearValue: ds.StencilClearValue,
			StencilReadOnly:   ds.StencilReadOnly,
		}
	}
	if tw := desc.TimestampWrites; tw != nil {
		q, err := resolveTimestampQuery[A](r.h, r.d, tw.QuerySet, tw.BeginningOfPassWriteIndex, tw.EndOfPassWriteIndex)
		if err != nil {
			return nil, fmt.Errorf("timestampWrites: %w", err)
		}
		out.TimestampWrites = &hal.RenderPassTimestampWrites{
			QuerySet:                  q.raw,
			BeginningOfPassWriteIndex: tw.BeginningOfPassWriteIndex,
			EndOfPassWriteIndex:       tw.EndOfPassWriteIndex,
		}
	}
	return out, nil
}

// commandEncoderRunRenderPass validates the attachments, then replays pass
// into a HAL render pass. The first invalid command ends the pass and
// invalidates the encoder.
func commandEncoderRunRenderPass[A API](g *Global, encoder id.CommandEncoderID, desc *RenderPassDescriptor, pass *RenderPass) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		r := &replayer[A]{h: h, d: cb.device}
		hd, err := r.renderPassDescriptor(desc)
		if err != nil {
			return err
		}
		enc := cb.encoder.BeginRenderPass(hd)
		defer enc.End()
		for i := range pass.commands {
			if err := r.renderPass(enc, &pass.commands[i]); err != nil {
				return fmt.Errorf("commands[%d] %v: %w", i, pass.commands[i].op, err)
			}
		}
		cb.buffers = append(cb.buffers, r.buffers...)
		cb.textures = append(cb.textures, r.textures...)
		return nil
	})
}

func commandEncoderRunComputePass[A API](g *Global, encoder id.CommandEncoderID, desc *ComputePassDescriptor, pass *ComputePass) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		r := &replayer[A]{h: h, d: cb.device}
		hd := &hal.ComputePassDescriptor{Label: desc.Label}
		if tw := desc.TimestampWrites; tw != nil {
			q, err := resolveTimestampQuery[A](h, cb.device, tw.QuerySet, tw.BeginningOfPassWriteIndex, tw.EndOfPassWriteIndex)
			if err != nil {
				return fmt.Errorf("timestampWrites: %w", err)
			}
			hd.TimestampWrites = &hal.ComputePassTimestampWrites{
				QuerySet:                  q.raw,
				BeginningOfPassWriteIndex: tw.BeginningOfPassWriteIndex,
				EndOfPassWriteIndex:       tw.EndOfPassWriteIndex,
			}
		}
		enc := cb.encoder.BeginComputePass(hd)
		defer enc.End()
		for i := range pass.commands {
			if err := r.compute(enc, &pass.commands[i]); err != nil {
				return fmt.Errorf("commands[%d] %v: %w", i, pass.commands[i].op, err)
			}
		}
		cb.buffers = append(cb.buffers, r.buffers...)
		cb.textures = append(cb.textures, r.textures...)
		return nil
	})
}

func (r *replayer[A]) compute(pass hal.ComputePassEncoder, c *passCommand) error {
	l := r.d.limits
	switch c.op {
	case opSetPipeline:
		p, err := resolve[A](r.h.computePipelines, id.FromRaw[id.ComputePipeline](c.target))
		if err != nil {
			return err
		}
		if p.device != r.d {
			return ErrDeviceMismatch
		}
		pass.SetPipeline(p.raw)
		r.pipelineSet = true
	case opSetBindGroup:
		g, err := r.bindGroup(c)
		if err != nil {
			return err
		}
		pass.SetBindGroup(c.index, g.raw, c.offsets)
	case opDispatch:
		if !r.pipelineSet {
			return fmt.Errorf("%w: dispatch without a pipeline", ErrEncoderState)
		}
		for _, n := range c.args[:3] {
			if n > l.MaxComputeWorkgroupsPerDimension {
				return fmt.Errorf("%w: %d workgroups, limit %d", ErrLimitsExceeded, n, l.MaxComputeWorkgroupsPerDimension)
			}
		}
		pass.Dispatch(c.args[0], c.args[1], c.args[2])
	case opDispatchIndirect:
		if !r.pipelineSet {
			return fmt.Errorf("%w: dispatch without a pipeline", ErrEncoderState)
		}
		b, err := r.buffer(c.target, gputypes.BufferUsageIndirect)
		if err != nil {
			return err
		}
		if c.offset%copyBufferAlignment != 0 {
			return fmt.Errorf("%w: indirect offset %d", ErrUnaligned, c.offset)
		}
		pass.DispatchIndirect(b.raw, c.offset)
	default:
		return fmt.Errorf("%w: %v is not allowed in a compute pass", ErrEncoderState, c.op)
	}
	return nil
}
