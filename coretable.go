package wgcore

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

// CoreTable is the operation table of one backend. Every entry is a generic
// operation instantiated for that backend, so a caller that only knows the
// backend at run time gets statically dispatched code by selecting a table.
//
// There is one CoreTable per compiled-in backend. Tables are built on first
// use and never change afterwards; compare them by pointer or with Equal.
//
// Entries do no validation of their own. Passing an identifier of another
// backend panics.
type CoreTable struct {
	Backend gputypes.Backend

	AdapterGetInfo                  func(g *Global, adapter id.AdapterID) (gputypes.AdapterInfo, error)
	AdapterTextureFormatFeatures    func(g *Global, adapter id.AdapterID, format gputypes.TextureFormat) (hal.TextureFormatCapabilityFlags, error)
	AdapterFeatures                 func(g *Global, adapter id.AdapterID) (gputypes.Features, error)
	AdapterLimits                   func(g *Global, adapter id.AdapterID) (gputypes.Limits, error)
	AdapterDownlevelCapabilities    func(g *Global, adapter id.AdapterID) (hal.DownlevelCapabilities, error)
	AdapterGetPresentationTimestamp func(g *Global, adapter id.AdapterID) (time.Duration, error)
	AdapterDrop                     func(g *Global, adapter id.AdapterID)
	AdapterRequestDevice            func(g *Global, adapter id.AdapterID, desc *DeviceDescriptor, deviceIn id.DeviceID, queueIn id.QueueID) (id.DeviceID, id.QueueID, error)
	AdapterIsSurfaceSupported       func(g *Global, adapter id.AdapterID, surface id.SurfaceID) (bool, error)

	SurfaceGetCurrentTexture func(g *Global, surface id.SurfaceID, idIn id.TextureID) (SurfaceTexture, error)
	SurfacePresent           func(g *Global, surface id.SurfaceID) error
	SurfaceTextureDiscard    func(g *Global, surface id.SurfaceID) error
	SurfaceGetCapabilities   func(g *Global, surface id.SurfaceID, adapter id.AdapterID) (*hal.SurfaceCapabilities, error)
	SurfaceConfigure         func(g *Global, surface id.SurfaceID, device id.DeviceID, config *SurfaceConfiguration) error

	// Device queries and buffer data access.
	DeviceFeatures            func(g *Global, device id.DeviceID) (gputypes.Features, error)
	DeviceLimits              func(g *Global, device id.DeviceID) (gputypes.Limits, error)
	DeviceDownlevelProperties func(g *Global, device id.DeviceID) (hal.DownlevelCapabilities, error)
	DeviceLabel               func(g *Global, device id.DeviceID) string
	DeviceSetBufferSubData    func(g *Global, device id.DeviceID, buffer id.BufferID, offset uint64, data []byte) error
	DeviceGetBufferSubData    func(g *Global, device id.DeviceID, buffer id.BufferID, offset uint64, data []byte) error

	DeviceCreateBuffer              func(g *Global, device id.DeviceID, desc *BufferDescriptor, idIn id.BufferID) (id.BufferID, error)
	DeviceCreateTexture             func(g *Global, device id.DeviceID, desc *TextureDescriptor, idIn id.TextureID) (id.TextureID, error)
	DeviceCreateSampler             func(g *Global, device id.DeviceID, desc *SamplerDescriptor, idIn id.SamplerID) (id.SamplerID, error)
	DeviceCreateBindGroupLayout     func(g *Global, device id.DeviceID, desc *BindGroupLayoutDescriptor, idIn id.BindGroupLayoutID) (id.BindGroupLayoutID, error)
	DeviceCreatePipelineLayout      func(g *Global, device id.DeviceID, desc *PipelineLayoutDescriptor, idIn id.PipelineLayoutID) (id.PipelineLayoutID, error)
	DeviceCreateBindGroup           func(g *Global, device id.DeviceID, desc *BindGroupDescriptor, idIn id.BindGroupID) (id.BindGroupID, error)
	DeviceCreateShaderModule        func(g *Global, device id.DeviceID, desc *ShaderModuleDescriptor, idIn id.ShaderModuleID) (id.ShaderModuleID, error)
	DeviceCreateShaderModuleSPIRV   func(g *Global, device id.DeviceID, desc *ShaderModuleSPIRVDescriptor, idIn id.ShaderModuleID) (id.ShaderModuleID, error)
	DeviceCreateCommandEncoder      func(g *Global, device id.DeviceID, desc *CommandEncoderDescriptor, idIn id.CommandEncoderID) (id.CommandEncoderID, error)
	DeviceCreateRenderBundleEncoder func(g *Global, device id.DeviceID, desc *RenderBundleEncoderDescriptor) (*RenderBundleEncoder, error)
	DeviceCreateQuerySet            func(g *Global, device id.DeviceID, desc *QuerySetDescriptor, idIn id.QuerySetID) (id.QuerySetID, error)
	DeviceCreateRenderPipeline      func(g *Global, device id.DeviceID, desc *RenderPipelineDescriptor, idIn id.RenderPipelineID) (id.RenderPipelineID, error)
	DeviceCreateComputePipeline     func(g *Global, device id.DeviceID, desc *ComputePipelineDescriptor, idIn id.ComputePipelineID) (id.ComputePipelineID, error)

	DeviceMaintainIDs          func(g *Global, device id.DeviceID) error
	DevicePoll                 func(g *Global, device id.DeviceID, wait bool) (bool, error)
	DeviceStartCapture         func(g *Global, device id.DeviceID)
	DeviceStopCapture          func(g *Global, device id.DeviceID)
	DeviceDrop                 func(g *Global, device id.DeviceID)
	DeviceSetDeviceLostClosure func(g *Global, device id.DeviceID, closure DeviceLostClosure) error
	DeviceDestroy              func(g *Global, device id.DeviceID)
	DeviceMarkLost             func(g *Global, device id.DeviceID, message string)

	// Error entries bind an identifier to an error record.
	CreateBufferError       func(g *Global, idIn id.BufferID, label string, cause error) id.BufferID
	CreateTextureError      func(g *Global, idIn id.TextureID, label string, cause error) id.TextureID
	CreateRenderBundleError func(g *Global, idIn id.RenderBundleID, label string, cause error) id.RenderBundleID

	BufferLabel          func(g *Global, buffer id.BufferID) string
	BufferDestroy        func(g *Global, buffer id.BufferID) error
	BufferDrop           func(g *Global, buffer id.BufferID, wait bool)
	BufferMapAsync       func(g *Global, buffer id.BufferID, offset, size uint64, mode MapMode, callback BufferMapCallback) error
	BufferGetMappedRange func(g *Global, buffer id.BufferID, offset, size uint64) ([]byte, error)
	BufferUnmap          func(g *Global, buffer id.BufferID) error

	// Textures, views and samplers.
	TextureLabel      func(g *Global, texture id.TextureID) string
	TextureDestroy    func(g *Global, texture id.TextureID) error
	TextureDrop       func(g *Global, texture id.TextureID, wait bool)
	TextureCreateView func(g *Global, texture id.TextureID, desc *TextureViewDescriptor, idIn id.TextureViewID) (id.TextureViewID, error)
	TextureViewLabel  func(g *Global, view id.TextureViewID) string
	TextureViewDrop   func(g *Global, view id.TextureViewID, wait bool) error
	SamplerLabel      func(g *Global, sampler id.SamplerID) string
	SamplerDrop       func(g *Global, sampler id.SamplerID)

	BindGroupLayoutLabel func(g *Global, layout id.BindGroupLayoutID) string
	BindGroupLayoutDrop  func(g *Global, layout id.BindGroupLayoutID)
	PipelineLayoutLabel  func(g *Global, layout id.PipelineLayoutID) string
	PipelineLayoutDrop   func(g *Global, layout id.PipelineLayoutID)
	BindGroupLabel       func(g *Global, group id.BindGroupID) string
	BindGroupDrop        func(g *Global, group id.BindGroupID)
	ShaderModuleLabel    func(g *Global, module id.ShaderModuleID) string
	ShaderModuleDrop     func(g *Global, module id.ShaderModuleID)

	CommandBufferLabel        func(g *Global, buffer id.CommandBufferID) string
	CommandEncoderDrop        func(g *Global, encoder id.CommandEncoderID)
	CommandBufferDrop         func(g *Global, buffer id.CommandBufferID)
	RenderBundleEncoderFinish func(g *Global, encoder *RenderBundleEncoder, desc *RenderBundleDescriptor, idIn id.RenderBundleID) (id.RenderBundleID, error)
	RenderBundleLabel         func(g *Global, bundle id.RenderBundleID) string
	RenderBundleDrop          func(g *Global, bundle id.RenderBundleID)
	QuerySetDrop              func(g *Global, querySet id.QuerySetID)
	QuerySetLabel             func(g *Global, querySet id.QuerySetID) string

	RenderPipelineGetBindGroupLayout  func(g *Global, pipeline id.RenderPipelineID, index uint32) (id.BindGroupLayoutID, error)
	RenderPipelineLabel               func(g *Global, pipeline id.RenderPipelineID) string
	RenderPipelineDrop                func(g *Global, pipeline id.RenderPipelineID)
	ComputePipelineGetBindGroupLayout func(g *Global, pipeline id.ComputePipelineID, index uint32) (id.BindGroupLayoutID, error)
	ComputePipelineLabel              func(g *Global, pipeline id.ComputePipelineID) string
	ComputePipelineDrop               func(g *Global, pipeline id.ComputePipelineID)

	PollAllDevices func(g *Global, force bool) (bool, error)

	CommandEncoderCopyBufferToBuffer   func(g *Global, encoder id.CommandEncoderID, src id.BufferID, srcOffset uint64, dst id.BufferID, dstOffset, size uint64) error
	CommandEncoderCopyBufferToTexture  func(g *Global, encoder id.CommandEncoderID, src *ImageCopyBuffer, dst *ImageCopyTexture, size *Extent3D) error
	CommandEncoderCopyTextureToBuffer  func(g *Global, encoder id.CommandEncoderID, src *ImageCopyTexture, dst *ImageCopyBuffer, size *Extent3D) error
	CommandEncoderCopyTextureToTexture func(g *Global, encoder id.CommandEncoderID, src, dst *ImageCopyTexture, size *Extent3D) error
	CommandEncoderRunRenderPass        func(g *Global, encoder id.CommandEncoderID, desc *RenderPassDescriptor, pass *RenderPass) error
	CommandEncoderRunComputePass       func(g *Global, encoder id.CommandEncoderID, desc *ComputePassDescriptor, pass *ComputePass) error
	CommandEncoderPushDebugGroup       func(g *Global, encoder id.CommandEncoderID, label string) error
	CommandEncoderInsertDebugMarker    func(g *Global, encoder id.CommandEncoderID, label string) error
	CommandEncoderPopDebugGroup        func(g *Global, encoder id.CommandEncoderID) error
	CommandEncoderFinish               func(g *Global, encoder id.CommandEncoderID) (id.CommandBufferID, error)
	CommandEncoderClearBuffer          func(g *Global, encoder id.CommandEncoderID, buffer id.BufferID, offset, size uint64) error
	CommandEncoderClearTexture         func(g *Global, encoder id.CommandEncoderID, texture id.TextureID, rng *ImageSubresourceRange) error
	CommandEncoderWriteTimestamp       func(g *Global, encoder id.CommandEncoderID, querySet id.QuerySetID, index uint32) error
	CommandEncoderResolveQuerySet      func(g *Global, encoder id.CommandEncoderID, querySet id.QuerySetID, first, count uint32, dst id.BufferID, dstOffset uint64) error

	// Queue writes and submission.
	QueueSubmit              func(g *Global, queue id.QueueID, buffers []id.CommandBufferID) (uint64, error)
	QueueWriteBuffer         func(g *Global, queue id.QueueID, buffer id.BufferID, offset uint64, data []byte) error
	QueueCreateStagingBuffer func(g *Global, queue id.QueueID, size uint64, idIn id.StagingBufferID) (id.StagingBufferID, []byte, error)
	QueueWriteStagingBuffer  func(g *Global, queue id.QueueID, buffer id.BufferID, offset uint64, staging id.StagingBufferID) error
	QueueValidateWriteBuffer func(g *Global, queue id.QueueID, buffer id.BufferID, offset, size uint64) error
	QueueWriteTexture        func(g *Global, queue id.QueueID, dst *ImageCopyTexture, data []byte, layout *ImageDataLayout, size *Extent3D) error
	QueueGetTimestampPeriod  func(g *Global, queue id.QueueID) (float32, error)
	QueueOnSubmittedWorkDone func(g *Global, queue id.QueueID, fn func()) error
	QueueDrop                func(g *Global, queue id.QueueID)
}

func newCoreTable[A API]() *CoreTable {
	var a A
	return &CoreTable{
		Backend: a.Variant(),

		AdapterGetInfo:                  adapterGetInfo[A],
		AdapterTextureFormatFeatures:    adapterTextureFormatFeatures[A],
		AdapterFeatures:                 adapterFeatures[A],
		AdapterLimits:                   adapterLimits[A],
		AdapterDownlevelCapabilities:    adapterDownlevelCapabilities[A],
		AdapterGetPresentationTimestamp: adapterGetPresentationTimestamp[A],
		AdapterDrop:                     adapterDrop[A],
		AdapterRequestDevice:            adapterRequestDevice[A],
		AdapterIsSurfaceSupported:       adapterIsSurfaceSupported[A],

		SurfaceGetCurrentTexture: surfaceGetCurrentTexture[A],
		SurfacePresent:           surfacePresent[A],
		SurfaceTextureDiscard:    surfaceTextureDiscard[A],
		SurfaceGetCapabilities:   surfaceGetCapabilities[A],
		SurfaceConfigure:         surfaceConfigure[A],

		DeviceFeatures:            deviceFeatures[A],
		DeviceLimits:              deviceLimits[A],
		DeviceDownlevelProperties: deviceDownlevelProperties[A],
		DeviceLabel:               deviceLabel[A],
		DeviceSetBufferSubData:    deviceSetBufferSubData[A],
		DeviceGetBufferSubData:    deviceGetBufferSubData[A],

		DeviceCreateBuffer:              deviceCreateBuffer[A],
		DeviceCreateTexture:             deviceCreateTexture[A],
		DeviceCreateSampler:             deviceCreateSampler[A],
		DeviceCreateBindGroupLayout:     deviceCreateBindGroupLayout[A],
		DeviceCreatePipelineLayout:      deviceCreatePipelineLayout[A],
		DeviceCreateBindGroup:           deviceCreateBindGroup[A],
		DeviceCreateShaderModule:        deviceCreateShaderModule[A],
		DeviceCreateShaderModuleSPIRV:   deviceCreateShaderModuleSPIRV[A],
		DeviceCreateCommandEncoder:      deviceCreateCommandEncoder[A],
		DeviceCreateRenderBundleEncoder: deviceCreateRenderBundleEncoder[A],
		DeviceCreateQuerySet:            deviceCreateQuerySet[A],
		DeviceCreateRenderPipeline:      deviceCreateRenderPipeline[A],
		DeviceCreateComputePipeline:     deviceCreateComputePipeline[A],

		DeviceMaintainIDs:          deviceMaintainIDs[A],
		DevicePoll:                 devicePoll[A],
		DeviceStartCapture:         deviceStartCapture[A],
		DeviceStopCapture:          deviceStopCapture[A],
		DeviceDrop:                 deviceDrop[A],
		DeviceSetDeviceLostClosure: deviceSetDeviceLostClosure[A],
		DeviceDestroy:              deviceDestroy[A],
		DeviceMarkLost:             deviceMarkLost[A],

		CreateBufferError:       createBufferError[A],
		CreateTextureError:      createTextureError[A],
		CreateRenderBundleError: createRenderBundleError[A],

		BufferLabel:          bufferLabel[A],
		BufferDestroy:        bufferDestroy[A],
		BufferDrop:           bufferDrop[A],
		BufferMapAsync:       bufferMapAsync[A],
		BufferGetMappedRange: bufferGetMappedRange[A],
		BufferUnmap:          bufferUnmap[A],

		TextureLabel:      textureLabel[A],
		TextureDestroy:    textureDestroy[A],
		TextureDrop:       textureDrop[A],
		TextureCreateView: textureCreateView[A],
		TextureViewLabel:  textureViewLabel[A],
		TextureViewDrop:   textureViewDrop[A],
		SamplerLabel:      samplerLabel[A],
		SamplerDrop:       samplerDrop[A],

		BindGroupLayoutLabel: bindGroupLayoutLabel[A],
		BindGroupLayoutDrop:  bindGroupLayoutDrop[A],
		PipelineLayoutLabel:  pipelineLayoutLabel[A],
		PipelineLayoutDrop:   pipelineLayoutDrop[A],
		BindGroupLabel:       bindGroupLabel[A],
		BindGroupDrop:        bindGroupDrop[A],
		ShaderModuleLabel:    shaderModuleLabel[A],
		ShaderModuleDrop:     shaderModuleDrop[A],

		CommandBufferLabel:        commandBufferLabel[A],
		CommandEncoderDrop:        commandEncoderDrop[A],
		CommandBufferDrop:         commandBufferDrop[A],
		RenderBundleEncoderFinish: renderBundleEncoderFinish[A],
		RenderBundleLabel:         renderBundleLabel[A],
		RenderBundleDrop:          renderBundleDrop[A],
		QuerySetDrop:              querySetDrop[A],
		QuerySetLabel:             querySetLabel[A],

		RenderPipelineGetBindGroupLayout:  renderPipelineGetBindGroupLayout[A],
		RenderPipelineLabel:               renderPipelineLabel[A],
		RenderPipelineDrop:                renderPipelineDrop[A],
		ComputePipelineGetBindGroupLayout: computePipelineGetBindGroupLayout[A],
		ComputePipelineLabel:              computePipelineLabel[A],
		ComputePipelineDrop:               computePipelineDrop[A],

		PollAllDevices: pollAllDevices[A],

		CommandEncoderCopyBufferToBuffer:   commandEncoderCopyBufferToBuffer[A],
		CommandEncoderCopyBufferToTexture:  commandEncoderCopyBufferToTexture[A],
		CommandEncoderCopyTextureToBuffer:  commandEncoderCopyTextureToBuffer[A],
		CommandEncoderCopyTextureToTexture: commandEncoderCopyTextureToTexture[A],
		CommandEncoderRunRenderPass:        commandEncoderRunRenderPass[A],
		CommandEncoderRunComputePass:       commandEncoderRunComputePass[A],
		CommandEncoderPushDebugGroup:       commandEncoderPushDebugGroup[A],
		CommandEncoderInsertDebugMarker:    commandEncoderInsertDebugMarker[A],
		CommandEncoderPopDebugGroup:        commandEncoderPopDebugGroup[A],
		CommandEncoderFinish:               commandEncoderFinish[A],
		CommandEncoderClearBuffer:          commandEncoderClearBuffer[A],
		CommandEncoderClearTexture:         commandEncoderClearTexture[A],
		CommandEncoderWriteTimestamp:       commandEncoderWriteTimestamp[A],
		CommandEncoderResolveQuerySet:      commandEncoderResolveQuerySet[A],

		QueueSubmit:              queueSubmit[A],
		QueueWriteBuffer:         queueWriteBuffer[A],
		QueueCreateStagingBuffer: queueCreateStagingBuffer[A],
		QueueWriteStagingBuffer:  queueWriteStagingBuffer[A],
		QueueValidateWriteBuffer: queueValidateWriteBuffer[A],
		QueueWriteTexture:        queueWriteTexture[A],
		QueueGetTimestampPeriod:  queueGetTimestampPeriod[A],
		QueueOnSubmittedWorkDone: queueOnSubmittedWorkDone[A],
		QueueDrop:                queueDrop[A],
	}
}

// FromBackend returns the table of backend b. It panics if b is not
// compiled in.
func FromBackend(b gputypes.Backend) *CoreTable {
	t, ok := TryFromBackend(b)
	if !ok {
		panic(fmt.Sprintf("wgcore: backend %v is not compiled in", b))
	}
	return t
}

// TryFromBackend returns the table of backend b, or false if b is not
// compiled in.
func TryFromBackend(b gputypes.Backend) (*CoreTable, bool) {
	e, ok := lookupAPI(b)
	if !ok {
		return nil, false
	}
	return e.table(), true
}

// LookupBackend is TryFromBackend with an error that names the backend.
func LookupBackend(b gputypes.Backend) (*CoreTable, error) {
	t, ok := TryFromBackend(b)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedBackend, b)
	}
	return t, nil
}

// TableFor returns the table that serves identifier raw.
func TableFor(raw id.RawID) (*CoreTable, error) {
	return LookupBackend(raw.Backend())
}

// Equal reports whether t and other are the same table. Tables are
// singletons, so this is identity.
func (t *CoreTable) Equal(other *CoreTable) bool {
	return t == other
}

func (t *CoreTable) String() string {
	return "CoreTable(" + t.Backend.String() + ")"
}

type tableTag struct {
	Backend string `json:"backend"`
}

// MarshalJSON writes the backend tag only.
func (t *CoreTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableTag{Backend: t.Backend.String()})
}

// TableRef wraps a table pointer so that decoding can swap in the
// compiled-in singleton for the decoded tag.
type TableRef struct {
	*CoreTable
}

// MarshalJSON writes the backend tag of the wrapped table.
func (r TableRef) MarshalJSON() ([]byte, error) {
	if r.CoreTable == nil {
		return []byte("null"), nil
	}
	return r.CoreTable.MarshalJSON()
}

// UnmarshalJSON resolves the tag to the table of a compiled-in backend.
func (r *TableRef) UnmarshalJSON(data []byte) error {
	var tag tableTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("wgcore: decode core table: %w", err)
	}
	b, ok := parseBackend(tag.Backend)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedBackend, tag.Backend)
	}
	t, err := LookupBackend(b)
	if err != nil {
		return err
	}
	r.CoreTable = t
	return nil
}

func parseBackend(name string) (gputypes.Backend, bool) {
	for _, b := range backendPriority {
		if b.String() == name {
			return b, true
		}
	}
	return 0, false
}
