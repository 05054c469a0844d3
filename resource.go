package wgcore

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

// Adapter is a physical adapter exposed by one backend instance.
type Adapter struct {
	raw hal.ExposedAdapter
}

// Info returns the adapter description reported by the backend.
func (a *Adapter) Info() gputypes.AdapterInfo { return a.raw.Info }

// DeviceLostReason tells a lost closure why the device went away.
type DeviceLostReason uint8

const (
	DeviceLostReasonUnknown DeviceLostReason = iota
	DeviceLostReasonDestroyed
	DeviceLostReasonDropped
)

func (r DeviceLostReason) String() string {
	switch r {
	case DeviceLostReasonDestroyed:
		return "Destroyed"
	case DeviceLostReasonDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// DeviceLostClosure is invoked at most once per device.
type DeviceLostClosure func(reason DeviceLostReason, message string)

// Device is an open logical device and its resource tracking state.
type Device struct {
	id        id.DeviceID
	queueID   id.QueueID
	adapter   *Adapter
	raw       hal.Device
	queue     *Queue
	label     string
	features  gputypes.Features
	limits    gputypes.Limits
	downlevel hal.DownlevelCapabilities

	valid     atomic.Bool
	destroyed atomic.Bool

	mu          sync.Mutex
	lostClosure DeviceLostClosure
	lostFired   bool
	// suspected holds destroy actions waiting for a submission to finish.
	suspected   []deferred
	pendingMaps []*Buffer
	capturing   bool
}

type deferred struct {
	submission uint64
	destroy    func()
}

// Features returns the features the device was opened with.
func (d *Device) Features() gputypes.Features { return d.features }

// Limits returns the limits the device was opened with.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// Queue is the single queue of a device.
type Queue struct {
	device *Device
	raw    hal.Queue

	mu             sync.Mutex
	lastSubmission uint64
	workDone       []workDoneCallback
}

type workDoneCallback struct {
	submission uint64
	fn         func()
}

type mapState uint8

const (
	mapUnmapped mapState = iota
	mapPending
	mapMapped
	mapMappedAtCreation
)

// MapMode selects read or write access for MapAsync.
type MapMode uint8

const (
	MapModeRead MapMode = 1 << iota
	MapModeWrite
)

// BufferMapCallback receives the outcome of a MapAsync request.
type BufferMapCallback func(err error)

// Buffer is a GPU buffer and its mapping state.
type Buffer struct {
	device *Device
	raw    hal.Buffer
	size   uint64
	usage  gputypes.BufferUsage

	mu             sync.Mutex
	state          mapState
	mode           MapMode
	mapOffset      uint64
	mapSize        uint64
	mapping        []byte
	staging        []byte
	callback       BufferMapCallback
	destroyed      bool
	lastSubmission uint64
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// StagingBuffer is host memory queued for a buffer write.
type StagingBuffer struct {
	device *Device
	data   []byte
}

// Texture is a GPU texture.
type Texture struct {
	device *Device
	raw    hal.Texture
	desc   TextureDescriptor

	mu             sync.Mutex
	destroyed      bool
	lastSubmission uint64
	// surface is set for textures acquired from a surface.
	surface *Surface
}

// TextureView is a view into a texture.
type TextureView struct {
	device  *Device
	texture *Texture
	raw     hal.TextureView
	desc    TextureViewDescriptor
}

// Sampler is a texture sampler.
type Sampler struct {
	device *Device
	raw    hal.Sampler
	desc   SamplerDescriptor
}

// BindGroupLayout is a validated set of binding slots.
type BindGroupLayout struct {
	device  *Device
	raw     hal.BindGroupLayout
	entries []gputypes.BindGroupLayoutEntry
}

func (l *BindGroupLayout) entry(binding uint32) (gputypes.BindGroupLayoutEntry, bool) {
	for _, e := range l.entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return gputypes.BindGroupLayoutEntry{}, false
}

// PipelineLayout lists the bind group layouts of a pipeline.
type PipelineLayout struct {
	device  *Device
	raw     hal.PipelineLayout
	groups  []id.BindGroupLayoutID
	layouts []*BindGroupLayout
}

// BindGroup binds resources to the slots of a layout.
type BindGroup struct {
	device   *Device
	raw      hal.BindGroup
	layout   *BindGroupLayout
	buffers  []*Buffer
	textures []*Texture
}

// ShaderModule is a compiled shader and, for WGSL sources, its IR.
type ShaderModule struct {
	device *Device
	raw    hal.ShaderModule
	module *ir.Module
}

// RenderPipeline is a compiled render pipeline.
type RenderPipeline struct {
	device *Device
	raw    hal.RenderPipeline
	layout *PipelineLayout
	// implicit is set when the layout was derived from the shaders and
	// registered on the pipeline's behalf.
	implicit *implicitLayout
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline struct {
	device   *Device
	raw      hal.ComputePipeline
	layout   *PipelineLayout
	implicit *implicitLayout
}

type implicitLayout struct {
	pipeline id.PipelineLayoutID
	groups   []id.BindGroupLayoutID
}

type encoderState uint8

const (
	encoderRecording encoderState = iota
	encoderFinished
	encoderSubmitted
	encoderInvalid
)

// CommandBuffer is a command encoder while recording and the finished
// command buffer afterwards. Both share one identifier.
type CommandBuffer struct {
	device  *Device
	encoder hal.CommandEncoder
	raw     hal.CommandBuffer

	mu         sync.Mutex
	state      encoderState
	debugDepth int
	submission uint64
	buffers    []*Buffer
	textures   []*Texture
	// transient views back texture clears and live until the buffer is
	// released.
	transient []hal.TextureView
}

// RenderBundle is a recorded sequence of render commands.
type RenderBundle struct {
	device *Device
	raw    hal.RenderBundle
	desc   RenderBundleEncoderDescriptor
}

// QuerySet is a set of occlusion or timestamp queries.
type QuerySet struct {
	device *Device
	raw    hal.QuerySet
	desc   QuerySetDescriptor
}

// Surface is a presentable surface. It is shared across backends: raw holds
// one HAL surface per backend instance.
type Surface struct {
	raw  map[gputypes.Backend]hal.Surface
	refs atomic.Int32

	mu         sync.Mutex
	config     *SurfaceConfiguration
	device     *Device
	acquired   *Texture
	acquiredID id.TextureID
}

func newSurface(raw map[gputypes.Backend]hal.Surface) *Surface {
	s := &Surface{raw: raw}
	s.refs.Store(1)
	return s
}

// Retain adds a holder. Every Retain must be balanced by Release before
// the Global is destroyed.
func (s *Surface) Retain() { s.refs.Add(1) }

// Release drops a holder added by Retain.
func (s *Surface) Release() { s.refs.Add(-1) }

func (q *Queue) owner() *Device           { return q.device }
func (b *Buffer) owner() *Device          { return b.device }
func (s *StagingBuffer) owner() *Device   { return s.device }
func (t *Texture) owner() *Device         { return t.device }
func (v *TextureView) owner() *Device     { return v.device }
func (s *Sampler) owner() *Device         { return s.device }
func (l *BindGroupLayout) owner() *Device { return l.device }
func (l *PipelineLayout) owner() *Device  { return l.device }
func (g *BindGroup) owner() *Device       { return g.device }
func (m *ShaderModule) owner() *Device    { return m.device }
func (p *RenderPipeline) owner() *Device  { return p.device }
func (p *ComputePipeline) owner() *Device { return p.device }
func (cb *CommandBuffer) owner() *Device  { return cb.device }
func (b *RenderBundle) owner() *Device    { return b.device }
func (q *QuerySet) owner() *Device        { return q.device }
