package id

// Kind enumerates the resource kinds that can be named by an identifier.
type Kind uint8

const (
	KindAdapter Kind = iota
	KindSurface
	KindDevice
	KindQueue
	KindBuffer
	KindStagingBuffer
	KindTexture
	KindTextureView
	KindSampler
	KindBindGroupLayout
	KindPipelineLayout
	KindBindGroup
	KindShaderModule
	KindCommandEncoder
	KindCommandBuffer
	KindRenderBundle
	KindQuerySet
	KindRenderPipeline
	KindComputePipeline
)

var kindNames = [...]string{
	KindAdapter:         "Adapter",
	KindSurface:         "Surface",
	KindDevice:          "Device",
	KindQueue:           "Queue",
	KindBuffer:          "Buffer",
	KindStagingBuffer:   "StagingBuffer",
	KindTexture:         "Texture",
	KindTextureView:     "TextureView",
	KindSampler:         "Sampler",
	KindBindGroupLayout: "BindGroupLayout",
	KindPipelineLayout:  "PipelineLayout",
	KindBindGroup:       "BindGroup",
	KindShaderModule:    "ShaderModule",
	KindCommandEncoder:  "CommandEncoder",
	KindCommandBuffer:   "CommandBuffer",
	KindRenderBundle:    "RenderBundle",
	KindQuerySet:        "QuerySet",
	KindRenderPipeline:  "RenderPipeline",
	KindComputePipeline: "ComputePipeline",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Marker is implemented by the zero-size types that tag an ID with its kind.
type Marker interface {
	Kind() Kind
}

// Markers.
type (
	Adapter         struct{}
	Surface         struct{}
	Device          struct{}
	Queue           struct{}
	Buffer          struct{}
	StagingBuffer   struct{}
	Texture         struct{}
	TextureView     struct{}
	Sampler         struct{}
	BindGroupLayout struct{}
	PipelineLayout  struct{}
	BindGroup       struct{}
	ShaderModule    struct{}
	CommandEncoder  struct{}
	CommandBuffer   struct{}
	RenderBundle    struct{}
	QuerySet        struct{}
	RenderPipeline  struct{}
	ComputePipeline struct{}
)

func (Adapter) Kind() Kind         { return KindAdapter }
func (Surface) Kind() Kind         { return KindSurface }
func (Device) Kind() Kind          { return KindDevice }
func (Queue) Kind() Kind           { return KindQueue }
func (Buffer) Kind() Kind          { return KindBuffer }
func (StagingBuffer) Kind() Kind   { return KindStagingBuffer }
func (Texture) Kind() Kind         { return KindTexture }
func (TextureView) Kind() Kind     { return KindTextureView }
func (Sampler) Kind() Kind         { return KindSampler }
func (BindGroupLayout) Kind() Kind { return KindBindGroupLayout }
func (PipelineLayout) Kind() Kind  { return KindPipelineLayout }
func (BindGroup) Kind() Kind       { return KindBindGroup }
func (ShaderModule) Kind() Kind    { return KindShaderModule }
func (CommandEncoder) Kind() Kind  { return KindCommandEncoder }
func (CommandBuffer) Kind() Kind   { return KindCommandBuffer }
func (RenderBundle) Kind() Kind    { return KindRenderBundle }
func (QuerySet) Kind() Kind        { return KindQuerySet }
func (RenderPipeline) Kind() Kind  { return KindRenderPipeline }
func (ComputePipeline) Kind() Kind { return KindComputePipeline }

// Typed identifiers.
type (
	AdapterID         = ID[Adapter]
	SurfaceID         = ID[Surface]
	DeviceID          = ID[Device]
	QueueID           = ID[Queue]
	BufferID          = ID[Buffer]
	StagingBufferID   = ID[StagingBuffer]
	TextureID         = ID[Texture]
	TextureViewID     = ID[TextureView]
	SamplerID         = ID[Sampler]
	BindGroupLayoutID = ID[BindGroupLayout]
	PipelineLayoutID  = ID[PipelineLayout]
	BindGroupID       = ID[BindGroup]
	ShaderModuleID    = ID[ShaderModule]
	CommandEncoderID  = ID[CommandEncoder]
	CommandBufferID   = ID[CommandBuffer]
	RenderBundleID    = ID[RenderBundle]
	QuerySetID        = ID[QuerySet]
	RenderPipelineID  = ID[RenderPipeline]
	ComputePipelineID = ID[ComputePipeline]
)
