package wgcore

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

// Descriptors that carry no resource references are the HAL types.
type (
	TextureViewDescriptor         = hal.TextureViewDescriptor
	SamplerDescriptor             = hal.SamplerDescriptor
	QuerySetDescriptor            = hal.QuerySetDescriptor
	CommandEncoderDescriptor      = hal.CommandEncoderDescriptor
	RenderBundleEncoderDescriptor = hal.RenderBundleEncoderDescriptor
	Extent3D                      = hal.Extent3D
	Origin3D                      = hal.Origin3D
	ImageDataLayout               = hal.ImageDataLayout
	SurfaceConfiguration          = hal.SurfaceConfiguration
)

// RequestAdapterOptions selects an adapter.
type RequestAdapterOptions struct {
	// Backends limits the search. Zero means every compiled-in backend.
	Backends          gputypes.Backends
	PowerPreference   gputypes.PowerPreference
	ForceFallback     bool
	CompatibleSurface id.SurfaceID
}

// DeviceDescriptor describes a device to open on an adapter.
type DeviceDescriptor struct {
	Label            string
	RequiredFeatures gputypes.Features
	// RequiredLimits defaults to the adapter limits when nil.
	RequiredLimits *gputypes.Limits
}

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Label            string
	Size             uint64
	Usage            gputypes.BufferUsage
	MappedAtCreation bool
}

// TextureDescriptor describes a texture.
type TextureDescriptor struct {
	Label         string
	Size          Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Dimension     gputypes.TextureDimension
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	ViewFormats   []gputypes.TextureFormat
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []gputypes.BindGroupLayoutEntry
}

// PipelineLayoutDescriptor describes a pipeline layout.
type PipelineLayoutDescriptor struct {
	Label              string
	BindGroupLayouts   []id.BindGroupLayoutID
	PushConstantRanges []hal.PushConstantRange
}

// BufferBinding binds a range of a buffer. A zero Size binds the rest of
// the buffer.
type BufferBinding struct {
	Buffer id.BufferID
	Offset uint64
	Size   uint64
}

// BindGroupEntry binds one resource. Exactly one of Buffer, Sampler and
// TextureView is set.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      *BufferBinding
	Sampler     id.SamplerID
	TextureView id.TextureViewID
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  id.BindGroupLayoutID
	Entries []BindGroupEntry
}

// ShaderModuleDescriptor describes a WGSL shader module.
type ShaderModuleDescriptor struct {
	Label string
	Code  string
}

// ShaderModuleSPIRVDescriptor describes a precompiled SPIR-V module.
// SPIR-V modules are not reflected, so pipelines using them need an
// explicit layout.
type ShaderModuleSPIRVDescriptor struct {
	Label string
	Code  []uint32
}

// ProgrammableStage names an entry point of a shader module.
type ProgrammableStage struct {
	Module     id.ShaderModuleID
	EntryPoint string
	Constants  map[string]float64
}

// VertexState is the vertex stage of a render pipeline.
type VertexState struct {
	ProgrammableStage
	Buffers []gputypes.VertexBufferLayout
}

// FragmentState is the fragment stage of a render pipeline.
type FragmentState struct {
	ProgrammableStage
	Targets []gputypes.ColorTargetState
}

// RenderPipelineDescriptor describes a render pipeline. A zero Layout asks
// for a layout derived from the shader bindings.
type RenderPipelineDescriptor struct {
	Label        string
	Layout       id.PipelineLayoutID
	Vertex       VertexState
	Primitive    gputypes.PrimitiveState
	DepthStencil *hal.DepthStencilState
	Multisample  gputypes.MultisampleState
	Fragment     *FragmentState
}

// ComputePipelineDescriptor describes a compute pipeline. A zero Layout
// asks for a layout derived from the shader bindings.
type ComputePipelineDescriptor struct {
	Label   string
	Layout  id.PipelineLayoutID
	Compute ProgrammableStage
}

// ImageCopyBuffer locates image data inside a buffer.
type ImageCopyBuffer struct {
	Buffer id.BufferID
	Layout ImageDataLayout
}

// ImageCopyTexture locates a subresource of a texture.
type ImageCopyTexture struct {
	Texture  id.TextureID
	MipLevel uint32
	Origin   Origin3D
	Aspect   gputypes.TextureAspect
}

// ImageSubresourceRange selects the mip levels and array layers a texture
// clear touches. Zero counts mean the rest of the texture.
type ImageSubresourceRange = hal.TextureRange

// RenderPassColorAttachment is one color target of a render pass.
type RenderPassColorAttachment struct {
	View          id.TextureViewID
	ResolveTarget id.TextureViewID
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	ClearValue    gputypes.Color
}

// RenderPassDepthStencilAttachment is the depth/stencil target of a render
// pass.
type RenderPassDepthStencilAttachment struct {
	View              id.TextureViewID
	DepthLoadOp       gputypes.LoadOp
	DepthStoreOp      gputypes.StoreOp
	DepthClearValue   float32
	DepthReadOnly     bool
	StencilLoadOp     gputypes.LoadOp
	StencilStoreOp    gputypes.StoreOp
	StencilClearValue uint32
	StencilReadOnly   bool
}

// PassTimestampWrites asks a pass to write timestamps at its start and
// end. Nil indices are skipped.
type PassTimestampWrites struct {
	QuerySet                  id.QuerySetID
	BeginningOfPassWriteIndex *uint32
	EndOfPassWriteIndex       *uint32
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	Label                  string
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
	TimestampWrites        *PassTimestampWrites
}

// ComputePassDescriptor describes a compute pass.
type ComputePassDescriptor struct {
	Label           string
	TimestampWrites *PassTimestampWrites
}

// RenderBundleDescriptor labels a finished render bundle.
type RenderBundleDescriptor struct {
	Label string
}
