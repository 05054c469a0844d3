package wgcore

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

func newDevice(a *Adapter, open hal.OpenDevice, desc *DeviceDescriptor, limits gputypes.Limits) *Device {
	d := &Device{
		adapter:   a,
		raw:       open.Device,
		label:     desc.Label,
		features:  desc.RequiredFeatures,
		limits:    limits,
		downlevel: a.raw.Capabilities.DownlevelCapabilities,
	}
	d.queue = &Queue{device: d, raw: open.Queue}
	d.valid.Store(true)
	return d
}

// check returns the error every operation on a dead device fails with.
func (d *Device) check() error {
	if d.destroyed.Load() {
		return ErrDeviceDestroyed
	}
	if !d.valid.Load() {
		return ErrDeviceLost
	}
	return nil
}

func (d *Device) requireFeatures(f gputypes.Features) error {
	if missing := f &^ d.features; missing != 0 {
		return &MissingFeaturesError{Missing: missing}
	}
	return nil
}

func (d *Device) requireDownlevel(f hal.DownlevelFlags) error {
	if missing := f &^ d.downlevel.Flags; missing != 0 {
		return &MissingDownlevelFlagsError{Missing: missing}
	}
	return nil
}

// loseDevice marks d invalid and fires the lost closure once.
func (d *Device) loseDevice(reason DeviceLostReason, message string) {
	d.valid.Store(false)
	d.mu.Lock()
	closure := d.lostClosure
	fire := !d.lostFired && closure != nil
	if fire {
		d.lostFired = true
	}
	d.mu.Unlock()
	if fire {
		closure(reason, message)
	}
}

// deferDestroy runs destroy once submission has completed, or now if it
// already has.
func (d *Device) deferDestroy(submission uint64, destroy func()) {
	if submission <= d.queue.raw.PollCompleted() {
		destroy()
		return
	}
	d.mu.Lock()
	d.suspected = append(d.suspected, deferred{submission: submission, destroy: destroy})
	d.mu.Unlock()
}

// maintain frees suspected resources and resolves pending maps whose
// submissions have completed. It reports whether all work is done.
func (d *Device) maintain() bool {
	completed := d.queue.raw.PollCompleted()

	d.mu.Lock()
	var ready []func()
	kept := d.suspected[:0]
	for _, s := range d.suspected {
		if s.submission <= completed {
			ready = append(ready, s.destroy)
		} else {
			kept = append(kept, s)
		}
	}
	d.suspected = kept
	var maps []*Buffer
	pending := d.pendingMaps[:0]
	for _, b := range d.pendingMaps {
		b.mu.Lock()
		done := b.lastSubmission <= completed
		b.mu.Unlock()
		if done {
			maps = append(maps, b)
		} else {
			pending = append(pending, b)
		}
	}
	d.pendingMaps = pending
	idle := len(d.suspected) == 0 && len(d.pendingMaps) == 0
	d.mu.Unlock()

	for _, destroy := range ready {
		destroy()
	}
	for _, b := range maps {
		b.resolveMap()
	}
	d.queue.fireWorkDone(completed)
	return idle && d.queue.idle(completed)
}

// release waits for the GPU, aborts outstanding maps, runs every deferred
// destruction and destroys the HAL device.
func (d *Device) release(reason DeviceLostReason, message string) {
	if err := d.raw.WaitIdle(); err != nil {
		Logger().Warn("wgcore: wait idle", "device", d.label, "err", err)
	}
	d.mu.Lock()
	suspected := d.suspected
	maps := d.pendingMaps
	d.suspected, d.pendingMaps = nil, nil
	d.mu.Unlock()

	for _, b := range maps {
		b.abortMap()
	}
	for _, s := range suspected {
		s.destroy()
	}
	d.queue.fireWorkDone(d.queue.raw.PollCompleted())
	d.loseDevice(reason, message)
	d.raw.Destroy()
	Logger().Info("wgcore: device released", "label", d.label, "reason", reason)
}

func deviceFeatures[A API](g *Global, device id.DeviceID) (gputypes.Features, error) {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return 0, err
	}
	return d.features, nil
}

func deviceLimits[A API](g *Global, device id.DeviceID) (gputypes.Limits, error) {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return gputypes.Limits{}, err
	}
	return d.limits, nil
}

func deviceDownlevelProperties[A API](g *Global, device id.DeviceID) (hal.DownlevelCapabilities, error) {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return hal.DownlevelCapabilities{}, err
	}
	return d.downlevel, nil
}

func deviceLabel[A API](g *Global, device id.DeviceID) string {
	return labelOf[A](hubOf[A](g).devices, device)
}

// deviceSetBufferSubData writes data into a MAP_WRITE buffer through a
// transient mapping.
func deviceSetBufferSubData[A API](g *Global, device id.DeviceID, buffer id.BufferID, offset uint64, data []byte) error {
	d, b, err := deviceBuffer[A](g, device, buffer)
	if err != nil {
		return err
	}
	if !b.usage.Contains(gputypes.BufferUsageMapWrite) {
		return &UsageError{Kind: id.KindBuffer, ID: buffer.Raw(), Actual: uint64(b.usage), Expected: uint64(gputypes.BufferUsageMapWrite)}
	}
	dst, err := mapTransient(d, b, offset, uint64(len(data)))
	if err != nil || dst == nil {
		return err
	}
	copy(dst, data)
	return d.raw.UnmapBuffer(b.raw)
}

// deviceGetBufferSubData reads from a MAP_READ buffer through a transient
// mapping.
func deviceGetBufferSubData[A API](g *Global, device id.DeviceID, buffer id.BufferID, offset uint64, data []byte) error {
	d, b, err := deviceBuffer[A](g, device, buffer)
	if err != nil {
		return err
	}
	if !b.usage.Contains(gputypes.BufferUsageMapRead) {
		return &UsageError{Kind: id.KindBuffer, ID: buffer.Raw(), Actual: uint64(b.usage), Expected: uint64(gputypes.BufferUsageMapRead)}
	}
	if err := d.raw.WaitIdle(); err != nil {
		return err
	}
	src, err := mapTransient(d, b, offset, uint64(len(data)))
	if err != nil || src == nil {
		return err
	}
	copy(data, src)
	return d.raw.UnmapBuffer(b.raw)
}

func deviceBuffer[A API](g *Global, device id.DeviceID, buffer id.BufferID) (*Device, *Buffer, error) {
	h := hubOf[A](g)
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return nil, nil, err
	}
	if err := d.check(); err != nil {
		return nil, nil, err
	}
	b, err := resolve[A](h.buffers, buffer)
	if err != nil {
		return nil, nil, err
	}
	if b.device != d {
		return nil, nil, ErrDeviceMismatch
	}
	return d, b, nil
}

// mapTransient maps [offset, offset+size) of an unmapped buffer. A zero
// size returns nil without touching the HAL.
func mapTransient(d *Device, b *Buffer, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, ErrDestroyed
	}
	if b.state != mapUnmapped {
		return nil, ErrBufferAlreadyMapped
	}
	if offset%4 != 0 || size%4 != 0 {
		return nil, ErrUnaligned
	}
	if offset > b.size || size > b.size-offset {
		return nil, ErrOutOfBounds
	}
	if size == 0 {
		return nil, nil
	}
	m, err := d.raw.MapBuffer(b.raw, offset, size)
	if err != nil {
		return nil, fmt.Errorf("wgcore: map buffer: %w", err)
	}
	return unsafe.Slice((*byte)(m.Ptr), size), nil
}

func deviceMaintainIDs[A API](g *Global, device id.DeviceID) error {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return err
	}
	d.maintain()
	return nil
}

// devicePoll resolves finished work. With wait set it blocks until the GPU
// is idle first. It reports whether the queue has no work left.
func devicePoll[A API](g *Global, device id.DeviceID, wait bool) (bool, error) {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return false, err
	}
	if wait {
		if err := d.raw.WaitIdle(); err != nil {
			d.loseDevice(DeviceLostReasonUnknown, err.Error())
			return false, fmt.Errorf("%w: %w", ErrDeviceLost, err)
		}
	}
	return d.maintain(), nil
}

// pollAllDevices polls every device of backend A and reports whether all
// queues are empty.
func pollAllDevices[A API](g *Global, force bool) (bool, error) {
	h := hubOf[A](g)
	empty := true
	var first error
	h.devices.Range(func(raw id.RawID, d *Device) bool {
		if force {
			if err := d.raw.WaitIdle(); err != nil && first == nil {
				first = fmt.Errorf("wgcore: device %v: %w", raw, err)
			}
		}
		if !d.maintain() {
			empty = false
		}
		return true
	})
	return empty, first
}

func deviceStartCapture[A API](g *Global, device id.DeviceID) {
	if d, err := resolve[A](hubOf[A](g).devices, device); err == nil {
		d.mu.Lock()
		d.capturing = true
		d.mu.Unlock()
		Logger().Debug("wgcore: capture started", "device", device)
	}
}

func deviceStopCapture[A API](g *Global, device id.DeviceID) {
	if d, err := resolve[A](hubOf[A](g).devices, device); err == nil {
		d.mu.Lock()
		d.capturing = false
		d.mu.Unlock()
		Logger().Debug("wgcore: capture stopped", "device", device)
	}
}

func deviceSetDeviceLostClosure[A API](g *Global, device id.DeviceID, closure DeviceLostClosure) error {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return err
	}
	d.mu.Lock()
	fired := d.lostFired
	d.lostClosure = closure
	d.mu.Unlock()
	// A closure set after the loss still hears about it.
	if !fired && !d.valid.Load() && closure != nil {
		d.loseDevice(DeviceLostReasonUnknown, "device was already lost")
	}
	return nil
}

// deviceDestroy makes the device unusable. Resources stay registered until
// they are dropped.
func deviceDestroy[A API](g *Global, device id.DeviceID) {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return
	}
	if d.destroyed.Swap(true) {
		return
	}
	if err := d.raw.WaitIdle(); err != nil {
		Logger().Warn("wgcore: wait idle", "device", device, "err", err)
	}
	d.maintain()
	d.loseDevice(DeviceLostReasonDestroyed, "device destroyed")
}

func deviceMarkLost[A API](g *Global, device id.DeviceID, message string) {
	if d, err := resolve[A](hubOf[A](g).devices, device); err == nil {
		d.loseDevice(DeviceLostReasonUnknown, message)
	}
}

// deviceDrop unregisters the device, releases every resource created from
// it and then the HAL device. Identifiers of those resources stay valid
// and fail with ErrDeviceLost until dropped.
func deviceDrop[A API](g *Global, device id.DeviceID) {
	h := hubOf[A](g)
	d, ok := unregister[A](h.devices, device)
	if !ok {
		return
	}
	h.releaseDevices([]*Device{d}, func(owner *Device) bool { return owner == d }, g.surfaces, "device dropped")
}
