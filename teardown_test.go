package wgcore

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/wgcore/hub"
)

// =============================================================================
// Recording HAL
// =============================================================================

// halLog records the HAL calls made through the recording types below.
type halLog struct {
	mu        sync.Mutex
	calls     []string
	seq       int
	destroyed map[any]int
	// afterDestroy lists device calls made once the device was destroyed.
	afterDestroy []string
}

func newHALLog() *halLog {
	return &halLog{destroyed: make(map[any]int)}
}

func (l *halLog) record(call string, obj any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
	if obj != nil {
		l.destroyed[obj]++
	}
}

func (l *halLog) next() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

// first returns the index of the first such call, or -1.
func (l *halLog) first(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Index(l.calls, call)
}

// last returns the index of the last such call, or -1.
func (l *halLog) last(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.calls) - 1; i >= 0; i-- {
		if l.calls[i] == call {
			return i
		}
	}
	return -1
}

func (l *halLog) count(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == call {
			n++
		}
	}
	return n
}

// check fails t if any HAL object was destroyed more than once or a
// device was used after its Destroy.
func (l *halLog) check(t *testing.T) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	for obj, n := range l.destroyed {
		if n != 1 {
			t.Errorf("HAL object %p destroyed %d times", obj, n)
		}
	}
	if len(l.afterDestroy) > 0 {
		t.Errorf("HAL device used after Destroy: %v", l.afterDestroy)
	}
}

type recordingInstance struct {
	*noop.Instance
	log *halLog
}

func (i *recordingInstance) CreateSurface(display, window uintptr) (hal.Surface, error) {
	s, err := i.Instance.CreateSurface(display, window)
	if err != nil {
		return nil, err
	}
	return &recordingSurface{Surface: s, log: i.log}, nil
}

func (i *recordingInstance) EnumerateAdapters(hint hal.Surface) []hal.ExposedAdapter {
	exposed := i.Instance.EnumerateAdapters(hint)
	for k := range exposed {
		exposed[k].Adapter = &recordingAdapter{Adapter: exposed[k].Adapter, log: i.log}
	}
	return exposed
}

func (i *recordingInstance) Destroy() {
	i.log.record("instance.Destroy", i)
}

type recordingAdapter struct {
	hal.Adapter
	log *halLog
}

func (a *recordingAdapter) Open(features gputypes.Features, limits gputypes.Limits) (hal.OpenDevice, error) {
	open, err := a.Adapter.Open(features, limits)
	if err != nil {
		return open, err
	}
	open.Device = &recordingDevice{Device: open.Device, log: a.log}
	return open, nil
}

func (a *recordingAdapter) Destroy() {
	a.log.record("adapter.Destroy", a)
}

type recordingSurface struct {
	hal.Surface
	log *halLog
}

func (s *recordingSurface) Unconfigure(d hal.Device) {
	s.log.record("surface.Unconfigure", nil)
	if rd, ok := d.(*recordingDevice); ok {
		rd.use("surface.Unconfigure")
	}
	s.Surface.Unconfigure(d)
}

func (s *recordingSurface) DiscardTexture(st hal.SurfaceTexture) {
	s.log.record("surface.DiscardTexture", nil)
	s.Surface.DiscardTexture(st)
}

func (s *recordingSurface) Destroy() {
	s.log.record("surface.Destroy", s)
}

// recordingDevice counts destructions and flags any call made after the
// device itself was destroyed.
type recordingDevice struct {
	hal.Device
	log  *halLog
	dead bool
}

func (d *recordingDevice) use(call string) {
	d.log.mu.Lock()
	defer d.log.mu.Unlock()
	if d.dead {
		d.log.afterDestroy = append(d.log.afterDestroy, call)
	}
}

func (d *recordingDevice) destroy(call string, obj any) {
	d.use(call)
	d.log.record(call, obj)
}

// The no-op backend returns zero-sized objects, which may share an
// address. The tracked wrappers give each one an identity.
type (
	trackedTexture struct {
		hal.Texture
		seq int
	}
	trackedView struct {
		hal.TextureView
		seq int
	}
	trackedModule struct {
		hal.ShaderModule
		seq int
	}
)

func (d *recordingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	t, err := d.Device.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	return &trackedTexture{Texture: t, seq: d.log.next()}, nil
}

func (d *recordingDevice) CreateTextureView(t hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	v, err := d.Device.CreateTextureView(t, desc)
	if err != nil {
		return nil, err
	}
	return &trackedView{TextureView: v, seq: d.log.next()}, nil
}

func (d *recordingDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	m, err := d.Device.CreateShaderModule(desc)
	if err != nil {
		return nil, err
	}
	return &trackedModule{ShaderModule: m, seq: d.log.next()}, nil
}

func (d *recordingDevice) DestroyBuffer(b hal.Buffer) {
	d.destroy("DestroyBuffer", b)
	d.Device.DestroyBuffer(b)
}

func (d *recordingDevice) DestroyTexture(t hal.Texture) {
	d.destroy("DestroyTexture", t)
	d.Device.DestroyTexture(t)
}

func (d *recordingDevice) DestroyTextureView(v hal.TextureView) {
	d.destroy("DestroyTextureView", v)
	d.Device.DestroyTextureView(v)
}

func (d *recordingDevice) DestroySampler(s hal.Sampler) {
	d.destroy("DestroySampler", s)
	d.Device.DestroySampler(s)
}

func (d *recordingDevice) DestroyBindGroup(g hal.BindGroup) {
	d.destroy("DestroyBindGroup", g)
	d.Device.DestroyBindGroup(g)
}

func (d *recordingDevice) DestroyBindGroupLayout(l hal.BindGroupLayout) {
	d.destroy("DestroyBindGroupLayout", l)
	d.Device.DestroyBindGroupLayout(l)
}

func (d *recordingDevice) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.destroy("DestroyPipelineLayout", l)
	d.Device.DestroyPipelineLayout(l)
}

func (d *recordingDevice) DestroyShaderModule(m hal.ShaderModule) {
	d.destroy("DestroyShaderModule", m)
	d.Device.DestroyShaderModule(m)
}

func (d *recordingDevice) FreeCommandBuffer(cb hal.CommandBuffer) {
	d.destroy("FreeCommandBuffer", cb)
	d.Device.FreeCommandBuffer(cb)
}

func (d *recordingDevice) WaitIdle() error {
	d.use("WaitIdle")
	return d.Device.WaitIdle()
}

func (d *recordingDevice) Destroy() {
	d.destroy("device.Destroy", d)
	d.log.mu.Lock()
	d.dead = true
	d.log.mu.Unlock()
	d.Device.Destroy()
}

// newRecordingDevice opens a device on a no-op instance whose HAL calls
// are recorded in the returned log. The caller destroys the Global.
func newRecordingDevice(t *testing.T) (*testDevice, *halLog) {
	t.Helper()
	log := newHALLog()
	g := NewFromHalInstance[Empty](t.Name(), &recordingInstance{Instance: &noop.Instance{}, log: log})
	adapter, err := g.RequestAdapter(nil, 0)
	if err != nil {
		t.Fatalf("RequestAdapter: %v", err)
	}
	tbl := FromBackend(adapter.Backend())
	device, queue, err := tbl.AdapterRequestDevice(g, adapter, &DeviceDescriptor{Label: "recorded"}, 0, 0)
	if err != nil {
		t.Fatalf("AdapterRequestDevice: %v", err)
	}
	return &testDevice{g: g, t: tbl, device: device, queue: queue}, log
}

func (td *testDevice) texture(t *testing.T) {
	t.Helper()
	_, err := td.t.DeviceCreateTexture(td.g, td.device, &TextureDescriptor{
		Label:     "tex",
		Size:      Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Dimension: gputypes.TextureDimension2D,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageCopyDst,
	}, 0)
	if err != nil {
		t.Fatalf("DeviceCreateTexture: %v", err)
	}
}

// =============================================================================
// Teardown Tests
// =============================================================================

func TestGlobalDestroyOrder(t *testing.T) {
	td, log := newRecordingDevice(t)

	destroyed := td.buffer(t, 16, gputypes.BufferUsageCopyDst)
	td.buffer(t, 16, gputypes.BufferUsageCopyDst)
	td.texture(t)
	tex, err := td.t.DeviceCreateTexture(td.g, td.device, &TextureDescriptor{
		Size:      Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Dimension: gputypes.TextureDimension2D,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageCopyDst,
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := td.t.BufferDestroy(td.g, destroyed); err != nil {
		t.Fatal(err)
	}
	if err := td.t.TextureDestroy(td.g, tex); err != nil {
		t.Fatal(err)
	}
	s := td.surface(t)
	if err := td.t.SurfaceConfigure(td.g, s, td.device, surfaceConfig(16, 16)); err != nil {
		t.Fatal(err)
	}
	if _, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0); err != nil {
		t.Fatal(err)
	}

	td.g.Destroy()
	log.check(t)

	counts := []struct {
		call string
		want int
	}{
		{"DestroyBuffer", 2},
		{"DestroyTexture", 2},
		{"surface.DiscardTexture", 1},
		{"surface.Unconfigure", 1},
		{"device.Destroy", 1},
		{"adapter.Destroy", 1},
		{"instance.Destroy", 1},
		{"surface.Destroy", 1},
	}
	for _, c := range counts {
		if got := log.count(c.call); got != c.want {
			t.Errorf("%s called %d times, want %d", c.call, got, c.want)
		}
	}

	// Each step must finish before the next starts.
	order := []struct{ before, after string }{
		{"DestroyBuffer", "surface.Unconfigure"},
		{"DestroyTexture", "surface.Unconfigure"},
		{"surface.DiscardTexture", "surface.Unconfigure"},
		{"surface.Unconfigure", "device.Destroy"},
		{"device.Destroy", "adapter.Destroy"},
		{"adapter.Destroy", "instance.Destroy"},
		{"instance.Destroy", "surface.Destroy"},
	}
	for _, o := range order {
		if log.last(o.before) > log.first(o.after) {
			t.Errorf("%s ran after %s", o.before, o.after)
		}
	}
}

func TestDeviceDropReleasesChildren(t *testing.T) {
	td, log := newRecordingDevice(t)

	b := td.buffer(t, 16, gputypes.BufferUsageCopyDst)
	td.texture(t)
	td.shader(t, "double", doubleWGSL)
	enc := td.encoder(t)
	s := td.surface(t)
	if err := td.t.SurfaceConfigure(td.g, s, td.device, surfaceConfig(16, 16)); err != nil {
		t.Fatal(err)
	}
	if _, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0); err != nil {
		t.Fatal(err)
	}

	td.t.DeviceDrop(td.g, td.device)
	log.check(t)
	for _, call := range []string{"DestroyBuffer", "DestroyTexture", "DestroyShaderModule", "surface.Unconfigure"} {
		if i := log.last(call); i < 0 || i > log.first("device.Destroy") {
			t.Errorf("%s did not run before the device was destroyed", call)
		}
	}

	var invalid *hub.InvalidResourceError
	if _, err := td.t.BufferGetMappedRange(td.g, b, 0, 0); !errors.As(err, &invalid) || !errors.Is(err, ErrDeviceLost) {
		t.Errorf("child buffer after DeviceDrop = %v", err)
	}
	if _, err := td.t.CommandEncoderFinish(td.g, enc); !errors.As(err, &invalid) || !errors.Is(err, ErrDeviceLost) {
		t.Errorf("child encoder after DeviceDrop = %v", err)
	}
	if got := td.t.BufferLabel(td.g, b); got != "buf" {
		t.Errorf("BufferLabel() after DeviceDrop = %q, want %q", got, "buf")
	}
	if _, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0); !errors.Is(err, ErrSurfaceNotConfigured) {
		t.Errorf("surface after DeviceDrop = %v, want ErrSurfaceNotConfigured", err)
	}
	td.t.BufferDrop(td.g, b, false)
	if _, err := td.t.BufferGetMappedRange(td.g, b, 0, 0); errors.Is(err, ErrDeviceLost) {
		t.Error("buffer error record survived BufferDrop")
	}

	td.g.Destroy()
	log.check(t)
	if n := log.count("DestroyBuffer"); n != 1 {
		t.Errorf("DestroyBuffer called %d times, want 1", n)
	}
}

func TestClearBackendKeepsAdapters(t *testing.T) {
	td, log := newRecordingDevice(t)
	td.buffer(t, 16, gputypes.BufferUsageCopyDst)

	ClearBackend[Empty](td.g)
	log.check(t)
	if n := log.count("adapter.Destroy"); n != 0 {
		t.Errorf("adapter.Destroy called %d times, want 0", n)
	}
	if n := log.count("device.Destroy"); n != 1 {
		t.Errorf("device.Destroy called %d times, want 1", n)
	}
	if r := hubOf[Empty](td.g).generateReport(); r.Adapters.NumKeptFromUser != 1 || r.Devices.NumKeptFromUser != 0 {
		t.Errorf("after ClearBackend adapters = %+v, devices = %+v", r.Adapters, r.Devices)
	}

	td.g.Destroy()
	log.check(t)
	if n := log.count("adapter.Destroy"); n != 1 {
		t.Errorf("adapter.Destroy called %d times after Destroy, want 1", n)
	}
}

func TestGenerateReportDuringCreation(t *testing.T) {
	td := newTestDevice(t)

	const workers, perWorker = 4, 50
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for range perWorker {
				b, err := td.t.DeviceCreateBuffer(td.g, td.device, &BufferDescriptor{Size: 16, Usage: gputypes.BufferUsageCopyDst}, 0)
				if err != nil {
					t.Error(err)
					return
				}
				td.t.BufferDrop(td.g, b, false)
			}
		})
		wg.Go(func() {
			for range perWorker {
				r := td.g.GenerateReport()
				for _, h := range r.Hubs {
					if h.Hub.Buffers.NumKeptFromUser > workers {
						t.Errorf("%d buffers kept, at most %d live", h.Hub.Buffers.NumKeptFromUser, workers)
						return
					}
				}
			}
		})
	}
	wg.Wait()

	for _, h := range td.g.GenerateReport().Hubs {
		if h.Hub.Buffers.NumKeptFromUser != 0 {
			t.Errorf("%s: %d buffers left", h.Backend, h.Hub.Buffers.NumKeptFromUser)
		}
	}
}
