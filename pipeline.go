package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/diag"
	"github.com/gogpu/wgcore/id"
)

// stageModule resolves the module of one programmable stage and checks
// its entry point. The returned entry point is nil for SPIR-V modules.
func stageModule[A API](ctx *diag.Context, h *Hub, d *Device, st *ProgrammableStage, stage ir.ShaderStage, wrap func(error) diag.Diagnostic) (*ShaderModule, *ir.EntryPoint, *diag.Error) {
	tok := ctx.Enter("module")
	m, err := resolve[A](h.shaderModules, st.Module)
	m, e := diag.Result(ctx, m, err, wrap)
	if e == nil && m.device != d {
		e = ctx.Report(wrap(ErrDeviceMismatch))
	}
	ctx.Leave(tok)
	if e != nil {
		return nil, nil, e
	}
	tok = ctx.Enter("entryPoint")
	defer ctx.Leave(tok)
	ep, err := m.entryPoint(st.EntryPoint, stage)
	if err != nil {
		return nil, nil, ctx.Report(diag.Stage(err))
	}
	return m, ep, nil
}

func entryPointName(st *ProgrammableStage, ep *ir.EntryPoint) string {
	if ep != nil {
		return ep.Name
	}
	return st.EntryPoint
}

// explicitLayout resolves a caller-supplied pipeline layout.
func explicitLayout[A API](ctx *diag.Context, h *Hub, d *Device, layout id.PipelineLayoutID, wrap func(error) diag.Diagnostic) (*PipelineLayout, *diag.Error) {
	tok := ctx.Enter("layout")
	defer ctx.Leave(tok)
	l, err := resolve[A](h.pipelineLayouts, layout)
	l, e := diag.Result(ctx, l, err, wrap)
	if e == nil && l.device != d {
		e = ctx.Report(wrap(ErrDeviceMismatch))
	}
	return l, e
}

// implicitPipelineLayout derives bind group layouts from the reflected
// bindings of modules and registers them together with a pipeline layout.
func implicitPipelineLayout[A API](ctx *diag.Context, h *Hub, d *Device, label string, modules []*ShaderModule, stages []gputypes.ShaderStages) (*PipelineLayout, *implicitLayout, *diag.Error) {
	tok := ctx.Enter("layout")
	defer ctx.Leave(tok)
	bindings := make(map[[2]uint32]*derivedBinding)
	for i, m := range modules {
		if err := deriveBindings(bindings, m.module, stages[i]); err != nil {
			return nil, nil, ctx.Report(diag.ImplicitLayout(err))
		}
	}
	groups := groupDerived(bindings)
	if n := uint32(len(groups)); n > d.limits.MaxBindGroups {
		return nil, nil, ctx.Report(diag.ImplicitLayout(fmt.Errorf("%w: shaders use %d groups, limit %d", ErrTooManyBindGroups, n, d.limits.MaxBindGroups)))
	}

	imp := &implicitLayout{}
	layouts := make([]*BindGroupLayout, len(groups))
	for i, entries := range groups {
		l, err := createBindGroupLayout(d, label, entries)
		if err != nil {
			releaseImplicit[A](h, imp)
			return nil, nil, ctx.Report(diag.ImplicitLayout(err))
		}
		layouts[i] = l
		imp.groups = append(imp.groups, assign(h.bindGroupLayouts, id.BindGroupLayoutID(0), label, l))
	}
	pl, err := createPipelineLayout(d, label, imp.groups, layouts, nil)
	if err != nil {
		releaseImplicit[A](h, imp)
		return nil, nil, ctx.Report(diag.ImplicitLayout(err))
	}
	imp.pipeline = assign(h.pipelineLayouts, id.PipelineLayoutID(0), label, pl)
	return pl, imp, nil
}

// releaseImplicit unregisters and destroys layouts created for a pipeline.
func releaseImplicit[A API](h *Hub, imp *implicitLayout) {
	if imp == nil {
		return
	}
	if !imp.pipeline.IsZero() {
		if l, ok := unregister[A](h.pipelineLayouts, imp.pipeline); ok {
			l.device.raw.DestroyPipelineLayout(l.raw)
		}
	}
	for _, gid := range imp.groups {
		if l, ok := unregister[A](h.bindGroupLayouts, gid); ok {
			l.device.raw.DestroyBindGroupLayout(l.raw)
		}
	}
}

type renderStages struct {
	vertex, fragment       *ShaderModule
	vertexEP, fragmentEP   string
	layout                 *PipelineLayout
	implicit               *implicitLayout
	vertexStage, fragStage gputypes.ShaderStages
}

func validateRenderPipeline[A API](ctx *diag.Context, h *Hub, d *Device, desc *RenderPipelineDescriptor) (*renderStages, *diag.Error) {
	wrap := diag.CreateRenderPipeline
	return diag.Try(ctx, func() (*renderStages, *diag.Error) {
		var failed *diag.Error
		rs := &renderStages{}
		l := d.limits

		tok := ctx.Enter("vertex")
		vm, vep, e := stageModule[A](ctx, h, d, &desc.Vertex.ProgrammableStage, ir.StageVertex, wrap)
		if e != nil {
			failed = e
		} else {
			rs.vertex, rs.vertexEP = vm, entryPointName(&desc.Vertex.ProgrammableStage, vep)
		}
		if n := uint32(len(desc.Vertex.Buffers)); n > l.MaxVertexBuffers {
			failed = ctx.Report(wrap(fmt.Errorf("%w: %d vertex buffers, limit %d", ErrLimitsExceeded, n, l.MaxVertexBuffers)))
		}
		btok := ctx.Enter("buffers")
		var attributes uint32
		for i, vb := range desc.Vertex.Buffers {
			ctx.Index(i)
			if vb.ArrayStride > uint64(l.MaxVertexBufferArrayStride) {
				failed = ctx.Report(wrap(fmt.Errorf("%w: array stride %d, limit %d", ErrLimitsExceeded, vb.ArrayStride, l.MaxVertexBufferArrayStride)))
			}
			if vb.ArrayStride%copyBufferAlignment != 0 {
				failed = ctx.Report(wrap(fmt.Errorf("%w: array stride %d", ErrUnaligned, vb.ArrayStride)))
			}
			for _, a := range vb.Attributes {
				attributes++
				if a.ShaderLocation >= l.MaxVertexAttributes {
					failed = ctx.Report(wrap(fmt.Errorf("%w: shader location %d, limit %d", ErrLimitsExceeded, a.ShaderLocation, l.MaxVertexAttributes)))
				}
			}
		}
		ctx.Leave(btok)
		if attributes > l.MaxVertexAttributes {
			failed = ctx.Report(wrap(fmt.Errorf("%w: %d vertex attributes, limit %d", ErrLimitsExceeded, attributes, l.MaxVertexAttributes)))
		}
		ctx.Leave(tok)

		tok = ctx.Enter("primitive")
		if desc.Primitive.UnclippedDepth {
			if err := d.requireFeatures(gputypes.Features(gputypes.FeatureDepthClipControl)); err != nil {
				failed = ctx.Report(diag.MissingFeatures(err))
			}
		}
		ctx.Leave(tok)

		samples := desc.Multisample.Count
		tok = ctx.Enter("multisample")
		if samples != 0 && samples != 1 && samples != 4 {
			failed = ctx.Report(wrap(fmt.Errorf("%w: %d", ErrSampleCount, samples)))
		}
		ctx.Leave(tok)

		if ds := desc.DepthStencil; ds != nil {
			tok = ctx.Enter("depthStencil")
			if !ds.Format.IsDepthStencil() {
				failed = ctx.Report(wrap(fmt.Errorf("%w: %v is not a depth or stencil format", ErrFormat, ds.Format)))
			}
			ctx.Leave(tok)
		}

		rs.vertexStage = gputypes.ShaderStageVertex
		if fs := desc.Fragment; fs != nil {
			tok = ctx.Enter("fragment")
			fm, fep, e := stageModule[A](ctx, h, d, &fs.ProgrammableStage, ir.StageFragment, wrap)
			if e != nil {
				failed = e
			} else {
				rs.fragment, rs.fragmentEP = fm, entryPointName(&fs.ProgrammableStage, fep)
				rs.fragStage = gputypes.ShaderStageFragment
			}
			if n := uint32(len(fs.Targets)); n > l.MaxColorAttachments {
				failed = ctx.Report(wrap(fmt.Errorf("%w: %d color targets, limit %d", ErrLimitsExceeded, n, l.MaxColorAttachments)))
			}
			ttok := ctx.Enter("targets")
			for i, t := range fs.Targets {
				ctx.Index(i)
				caps := d.adapter.raw.Adapter.TextureFormatCapabilities(t.Format).Flags
				if caps&hal.TextureFormatCapabilityRenderAttachment == 0 {
					failed = ctx.Report(wrap(fmt.Errorf("%w: %v is not renderable", ErrFormat, t.Format)))
				}
				if t.Blend != nil && caps&hal.TextureFormatCapabilityBlendable == 0 {
					failed = ctx.Report(wrap(fmt.Errorf("%w: %v is not blendable", ErrFormat, t.Format)))
				}
				if samples > 1 && caps&hal.TextureFormatCapabilityMultisample == 0 {
					failed = ctx.Report(wrap(fmt.Errorf("%w: %v does not support multisampling", ErrSampleCount, t.Format)))
				}
			}
			ctx.Leave(ttok)
			ctx.Leave(tok)
		}
		if failed != nil {
			return nil, failed
		}

		if desc.Layout.IsZero() {
			modules := []*ShaderModule{rs.vertex}
			stages := []gputypes.ShaderStages{rs.vertexStage}
			if rs.fragment != nil {
				modules = append(modules, rs.fragment)
				stages = append(stages, rs.fragStage)
			}
			pl, imp, e := implicitPipelineLayout[A](ctx, h, d, desc.Label, modules, stages)
			if e != nil {
				return nil, e
			}
			rs.layout, rs.implicit = pl, imp
		} else {
			pl, e := explicitLayout[A](ctx, h, d, desc.Layout, wrap)
			if e != nil {
				return nil, e
			}
			rs.layout = pl
		}
		return rs, nil
	})
}

func deviceCreateRenderPipeline[A API](g *Global, device id.DeviceID, desc *RenderPipelineDescriptor, idIn id.RenderPipelineID) (id.RenderPipelineID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.RenderPipelineID, error) {
		return assignError(h.renderPipelines, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	ctx := diag.New()
	rs, e := validateRenderPipeline[A](ctx, h, d, desc)
	if e != nil {
		return fail(validationError("create render pipeline", desc.Label, ctx))
	}

	hd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: rs.layout.raw,
		Vertex: hal.VertexState{
			Module:     rs.vertex.raw,
			EntryPoint: rs.vertexEP,
			Buffers:    desc.Vertex.Buffers,
		},
		Primitive:    desc.Primitive,
		DepthStencil: desc.DepthStencil,
		Multisample:  desc.Multisample,
	}
	if hd.Multisample.Count == 0 {
		hd.Multisample.Count = 1
	}
	if hd.Multisample.Mask == 0 {
		hd.Multisample.Mask = ^uint64(0)
	}
	if desc.Fragment != nil {
		hd.Fragment = &hal.FragmentState{
			Module:     rs.fragment.raw,
			EntryPoint: rs.fragmentEP,
			Targets:    desc.Fragment.Targets,
		}
	}
	raw, err := d.raw.CreateRenderPipeline(hd)
	if err != nil {
		releaseImplicit[A](h, rs.implicit)
		return fail(fmt.Errorf("wgcore: create render pipeline: %w", err))
	}
	p := &RenderPipeline{device: d, raw: raw, layout: rs.layout, implicit: rs.implicit}
	Logger().Debug("wgcore: render pipeline created", "label", desc.Label, "implicit_layout", rs.implicit != nil)
	return assign(h.renderPipelines, idIn, desc.Label, p), nil
}

func validateComputePipeline[A API](ctx *diag.Context, h *Hub, d *Device, desc *ComputePipelineDescriptor) (*ShaderModule, string, *diag.Error) {
	wrap := diag.CreateComputePipeline
	var m *ShaderModule
	var entry string
	e := ctx.TryBlock(func() *diag.Error {
		if err := d.requireDownlevel(hal.DownlevelFlagsComputeShaders); err != nil {
			return ctx.Report(diag.MissingDownlevelFlags(err))
		}
		tok := ctx.Enter("compute")
		defer ctx.Leave(tok)
		cm, ep, e := stageModule[A](ctx, h, d, &desc.Compute, ir.StageCompute, wrap)
		if e != nil {
			return e
		}
		if ep != nil {
			l := d.limits
			wg := ep.Workgroup
			if wg[0] > l.MaxComputeWorkgroupSizeX || wg[1] > l.MaxComputeWorkgroupSizeY || wg[2] > l.MaxComputeWorkgroupSizeZ ||
				uint64(wg[0])*uint64(wg[1])*uint64(wg[2]) > uint64(l.MaxComputeInvocationsPerWorkgroup) {
				return ctx.Report(diag.Stage(fmt.Errorf("%w: workgroup size %v", ErrLimitsExceeded, wg)))
			}
		}
		m, entry = cm, entryPointName(&desc.Compute, ep)
		return nil
	})
	return m, entry, e
}

func deviceCreateComputePipeline[A API](g *Global, device id.DeviceID, desc *ComputePipelineDescriptor, idIn id.ComputePipelineID) (id.ComputePipelineID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.ComputePipelineID, error) {
		return assignError(h.computePipelines, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	ctx := diag.New()
	m, entry, e := validateComputePipeline[A](ctx, h, d, desc)
	if e != nil {
		return fail(validationError("create compute pipeline", desc.Label, ctx))
	}

	var layout *PipelineLayout
	var imp *implicitLayout
	if desc.Layout.IsZero() {
		layout, imp, e = implicitPipelineLayout[A](ctx, h, d, desc.Label, []*ShaderModule{m}, []gputypes.ShaderStages{gputypes.ShaderStageCompute})
	} else {
		layout, e = explicitLayout[A](ctx, h, d, desc.Layout, diag.CreateComputePipeline)
	}
	if e != nil {
		return fail(validationError("create compute pipeline", desc.Label, ctx))
	}

	raw, err := d.raw.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.raw,
		Compute: hal.ComputeState{
			Module:                        m.raw,
			EntryPoint:                    entry,
			Constants:                     desc.Compute.Constants,
			ZeroInitializeWorkgroupMemory: true,
		},
	})
	if err != nil {
		releaseImplicit[A](h, imp)
		return fail(fmt.Errorf("wgcore: create compute pipeline: %w", err))
	}
	return assign(h.computePipelines, idIn, desc.Label, &ComputePipeline{device: d, raw: raw, layout: layout, implicit: imp}), nil
}

func pipelineGroup(layout *PipelineLayout, index uint32) (id.BindGroupLayoutID, error) {
	if int(index) >= len(layout.groups) {
		return 0, fmt.Errorf("%w: bind group index %d, layout has %d", ErrOutOfBounds, index, len(layout.groups))
	}
	return layout.groups[index], nil
}

// renderPipelineGetBindGroupLayout returns the identifier of the layout at
// index. Implicit layouts are owned by the pipeline and go away with it.
func renderPipelineGetBindGroupLayout[A API](g *Global, pipeline id.RenderPipelineID, index uint32) (id.BindGroupLayoutID, error) {
	p, err := resolve[A](hubOf[A](g).renderPipelines, pipeline)
	if err != nil {
		return 0, err
	}
	return pipelineGroup(p.layout, index)
}

func renderPipelineLabel[A API](g *Global, pipeline id.RenderPipelineID) string {
	return labelOf[A](hubOf[A](g).renderPipelines, pipeline)
}

func renderPipelineDrop[A API](g *Global, pipeline id.RenderPipelineID) {
	h := hubOf[A](g)
	if p, ok := unregister[A](h.renderPipelines, pipeline); ok {
		p.device.raw.DestroyRenderPipeline(p.raw)
		releaseImplicit[A](h, p.implicit)
	}
}

func computePipelineGetBindGroupLayout[A API](g *Global, pipeline id.ComputePipelineID, index uint32) (id.BindGroupLayoutID, error) {
	p, err := resolve[A](hubOf[A](g).computePipelines, pipeline)
	if err != nil {
		return 0, err
	}
	return pipelineGroup(p.layout, index)
}

func computePipelineLabel[A API](g *Global, pipeline id.ComputePipelineID) string {
	return labelOf[A](hubOf[A](g).computePipelines, pipeline)
}

func computePipelineDrop[A API](g *Global, pipeline id.ComputePipelineID) {
	h := hubOf[A](g)
	if p, ok := unregister[A](h.computePipelines, pipeline); ok {
		p.device.raw.DestroyComputePipeline(p.raw)
		releaseImplicit[A](h, p.implicit)
	}
}
