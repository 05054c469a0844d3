package wgcore

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/hub"
	"github.com/gogpu/wgcore/id"
)

// Hub holds the resource registries of one backend.
type Hub struct {
	backend gputypes.Backend

	adapters         *hub.Registry[*Adapter]
	devices          *hub.Registry[*Device]
	queues           *hub.Registry[*Queue]
	buffers          *hub.Registry[*Buffer]
	stagingBuffers   *hub.Registry[*StagingBuffer]
	textures         *hub.Registry[*Texture]
	textureViews     *hub.Registry[*TextureView]
	samplers         *hub.Registry[*Sampler]
	bindGroupLayouts *hub.Registry[*BindGroupLayout]
	pipelineLayouts  *hub.Registry[*PipelineLayout]
	bindGroups       *hub.Registry[*BindGroup]
	shaderModules    *hub.Registry[*ShaderModule]
	commandBuffers   *hub.Registry[*CommandBuffer]
	renderBundles    *hub.Registry[*RenderBundle]
	querySets        *hub.Registry[*QuerySet]
	renderPipelines  *hub.Registry[*RenderPipeline]
	computePipelines *hub.Registry[*ComputePipeline]
}

func newHub(b gputypes.Backend) *Hub {
	return &Hub{
		backend:          b,
		adapters:         hub.NewRegistry[*Adapter](id.KindAdapter, b),
		devices:          hub.NewRegistry[*Device](id.KindDevice, b),
		queues:           hub.NewRegistry[*Queue](id.KindQueue, b),
		buffers:          hub.NewRegistry[*Buffer](id.KindBuffer, b),
		stagingBuffers:   hub.NewRegistry[*StagingBuffer](id.KindStagingBuffer, b),
		textures:         hub.NewRegistry[*Texture](id.KindTexture, b),
		textureViews:     hub.NewRegistry[*TextureView](id.KindTextureView, b),
		samplers:         hub.NewRegistry[*Sampler](id.KindSampler, b),
		bindGroupLayouts: hub.NewRegistry[*BindGroupLayout](id.KindBindGroupLayout, b),
		pipelineLayouts:  hub.NewRegistry[*PipelineLayout](id.KindPipelineLayout, b),
		bindGroups:       hub.NewRegistry[*BindGroup](id.KindBindGroup, b),
		shaderModules:    hub.NewRegistry[*ShaderModule](id.KindShaderModule, b),
		commandBuffers:   hub.NewRegistry[*CommandBuffer](id.KindCommandBuffer, b),
		renderBundles:    hub.NewRegistry[*RenderBundle](id.KindRenderBundle, b),
		querySets:        hub.NewRegistry[*QuerySet](id.KindQuerySet, b),
		renderPipelines:  hub.NewRegistry[*RenderPipeline](id.KindRenderPipeline, b),
		computePipelines: hub.NewRegistry[*ComputePipeline](id.KindComputePipeline, b),
	}
}

// Backend returns the backend the hub belongs to.
func (h *Hub) Backend() gputypes.Backend { return h.backend }

// clear destroys every resource in the hub. Adapters are kept unless
// withAdapters is set.
func (h *Hub) clear(surfaces *hub.Registry[*Surface], withAdapters bool) {
	h.releaseDevices(h.devices.Drain(), nil, surfaces, "global destroyed")
	if !withAdapters {
		return
	}
	for _, a := range h.adapters.Drain() {
		a.raw.Adapter.Destroy()
	}
}

// releaseDevices destroys the resources created from devices and then the
// devices themselves. owned selects the children to release, which stay
// registered as error records until dropped; nil removes every entry of
// every registry instead.
//
// Command buffers go first and query sets last among the children. A
// surface configured on one of the devices is unconfigured, and its
// acquired texture discarded, before that device is destroyed.
func (h *Hub) releaseDevices(devices []*Device, owned func(*Device) bool, surfaces *hub.Registry[*Surface], message string) {
	for _, d := range devices {
		if err := d.raw.WaitIdle(); err != nil {
			Logger().Warn("wgcore: wait idle during teardown", "device", d.label, "err", err)
		}
	}

	for _, cb := range drainOwned(h.commandBuffers, owned) {
		cb.release()
	}
	for _, s := range drainOwned(h.samplers, owned) {
		s.device.raw.DestroySampler(s.raw)
	}
	for _, v := range drainOwned(h.textureViews, owned) {
		v.device.raw.DestroyTextureView(v.raw)
	}
	for _, t := range drainOwned(h.textures, owned) {
		t.release()
	}
	for _, b := range drainOwned(h.buffers, owned) {
		b.release()
	}
	drainOwned(h.stagingBuffers, owned)
	for _, g := range drainOwned(h.bindGroups, owned) {
		g.device.raw.DestroyBindGroup(g.raw)
	}
	for _, p := range drainOwned(h.computePipelines, owned) {
		p.device.raw.DestroyComputePipeline(p.raw)
	}
	for _, p := range drainOwned(h.renderPipelines, owned) {
		p.device.raw.DestroyRenderPipeline(p.raw)
	}
	for _, l := range drainOwned(h.bindGroupLayouts, owned) {
		l.device.raw.DestroyBindGroupLayout(l.raw)
	}
	for _, l := range drainOwned(h.pipelineLayouts, owned) {
		l.device.raw.DestroyPipelineLayout(l.raw)
	}
	for _, m := range drainOwned(h.shaderModules, owned) {
		m.device.raw.DestroyShaderModule(m.raw)
	}
	for _, b := range drainOwned(h.renderBundles, owned) {
		b.device.raw.DestroyRenderBundle(b.raw)
	}
	for _, q := range drainOwned(h.querySets, owned) {
		q.device.raw.DestroyQuerySet(q.raw)
	}
	drainOwned(h.queues, owned)

	for _, d := range devices {
		for _, s := range surfaces.Values() {
			s.unconfigure(d)
		}
		d.release(DeviceLostReasonDropped, message)
	}
}

// deviceChild is a resource created from a device.
type deviceChild interface {
	owner() *Device
}

func drainOwned[T deviceChild](r *hub.Registry[T], owned func(*Device) bool) []T {
	if owned == nil {
		return r.Drain()
	}
	return r.Invalidate(func(v T) bool { return owned(v.owner()) }, errParentDropped)
}

// HubReport is the occupancy of every registry in a hub.
type HubReport struct {
	Adapters         hub.RegistryReport `json:"adapters" yaml:"adapters"`
	Devices          hub.RegistryReport `json:"devices" yaml:"devices"`
	Queues           hub.RegistryReport `json:"queues" yaml:"queues"`
	Buffers          hub.RegistryReport `json:"buffers" yaml:"buffers"`
	StagingBuffers   hub.RegistryReport `json:"staging_buffers" yaml:"staging_buffers"`
	Textures         hub.RegistryReport `json:"textures" yaml:"textures"`
	TextureViews     hub.RegistryReport `json:"texture_views" yaml:"texture_views"`
	Samplers         hub.RegistryReport `json:"samplers" yaml:"samplers"`
	BindGroupLayouts hub.RegistryReport `json:"bind_group_layouts" yaml:"bind_group_layouts"`
	PipelineLayouts  hub.RegistryReport `json:"pipeline_layouts" yaml:"pipeline_layouts"`
	BindGroups       hub.RegistryReport `json:"bind_groups" yaml:"bind_groups"`
	ShaderModules    hub.RegistryReport `json:"shader_modules" yaml:"shader_modules"`
	CommandBuffers   hub.RegistryReport `json:"command_buffers" yaml:"command_buffers"`
	RenderBundles    hub.RegistryReport `json:"render_bundles" yaml:"render_bundles"`
	QuerySets        hub.RegistryReport `json:"query_sets" yaml:"query_sets"`
	RenderPipelines  hub.RegistryReport `json:"render_pipelines" yaml:"render_pipelines"`
	ComputePipelines hub.RegistryReport `json:"compute_pipelines" yaml:"compute_pipelines"`
}

func (h *Hub) generateReport() HubReport {
	return HubReport{
		Adapters:         h.adapters.GenerateReport(),
		Devices:          h.devices.GenerateReport(),
		Queues:           h.queues.GenerateReport(),
		Buffers:          h.buffers.GenerateReport(),
		StagingBuffers:   h.stagingBuffers.GenerateReport(),
		Textures:         h.textures.GenerateReport(),
		TextureViews:     h.textureViews.GenerateReport(),
		Samplers:         h.samplers.GenerateReport(),
		BindGroupLayouts: h.bindGroupLayouts.GenerateReport(),
		PipelineLayouts:  h.pipelineLayouts.GenerateReport(),
		BindGroups:       h.bindGroups.GenerateReport(),
		ShaderModules:    h.shaderModules.GenerateReport(),
		CommandBuffers:   h.commandBuffers.GenerateReport(),
		RenderBundles:    h.renderBundles.GenerateReport(),
		QuerySets:        h.querySets.GenerateReport(),
		RenderPipelines:  h.renderPipelines.GenerateReport(),
		ComputePipelines: h.computePipelines.GenerateReport(),
	}
}

// Rows returns the report as (name, registry report) pairs in hub order.
func (r HubReport) Rows() []HubReportRow {
	return []HubReportRow{
		{"adapters", r.Adapters},
		{"devices", r.Devices},
		{"queues", r.Queues},
		{"buffers", r.Buffers},
		{"staging_buffers", r.StagingBuffers},
		{"textures", r.Textures},
		{"texture_views", r.TextureViews},
		{"samplers", r.Samplers},
		{"bind_group_layouts", r.BindGroupLayouts},
		{"pipeline_layouts", r.PipelineLayouts},
		{"bind_groups", r.BindGroups},
		{"shader_modules", r.ShaderModules},
		{"command_buffers", r.CommandBuffers},
		{"render_bundles", r.RenderBundles},
		{"query_sets", r.QuerySets},
		{"render_pipelines", r.RenderPipelines},
		{"compute_pipelines", r.ComputePipelines},
	}
}

// HubReportRow is one named registry in a HubReport.
type HubReportRow struct {
	Name   string
	Report hub.RegistryReport
}
