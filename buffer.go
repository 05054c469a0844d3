package wgcore

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

const (
	// copyBufferAlignment is the alignment of buffer sizes and copy offsets.
	copyBufferAlignment = 4
	// mapAlignment is the alignment of MapAsync offsets.
	mapAlignment = 8
)

func validateBufferDescriptor(d *Device, desc *BufferDescriptor) error {
	u := desc.Usage
	if u == 0 || u.ContainsUnknownBits() {
		return fmt.Errorf("%w: %#x", ErrInvalidUsage, uint64(u))
	}
	if u.Contains(gputypes.BufferUsageMapRead) && u&^(gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst) != 0 {
		return fmt.Errorf("%w: MapRead may only be combined with CopyDst", ErrInvalidUsage)
	}
	if u.Contains(gputypes.BufferUsageMapWrite) && u&^(gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc) != 0 {
		return fmt.Errorf("%w: MapWrite may only be combined with CopySrc", ErrInvalidUsage)
	}
	if desc.Size > d.limits.MaxBufferSize {
		return fmt.Errorf("%w: %d exceeds MaxBufferSize %d", ErrInvalidSize, desc.Size, d.limits.MaxBufferSize)
	}
	if desc.MappedAtCreation && desc.Size%copyBufferAlignment != 0 {
		return fmt.Errorf("%w: mapped at creation size %d is not a multiple of %d", ErrUnaligned, desc.Size, copyBufferAlignment)
	}
	return nil
}

func deviceCreateBuffer[A API](g *Global, device id.DeviceID, desc *BufferDescriptor, idIn id.BufferID) (id.BufferID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.BufferID, error) {
		return assignError(h.buffers, idIn, desc.Label, err), err
	}

	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	if err := validateBufferDescriptor(d, desc); err != nil {
		return fail(err)
	}

	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            desc.Usage,
		MappedAtCreation: desc.MappedAtCreation && desc.Usage.Contains(gputypes.BufferUsageMapWrite),
	})
	if err != nil {
		return fail(fmt.Errorf("wgcore: create buffer: %w", err))
	}
	b := &Buffer{device: d, raw: raw, size: desc.Size, usage: desc.Usage}
	if desc.MappedAtCreation {
		if err := b.mapAtCreation(); err != nil {
			d.raw.DestroyBuffer(raw)
			return fail(err)
		}
	}
	Logger().Debug("wgcore: buffer created", "label", desc.Label, "size", desc.Size)
	return assign(h.buffers, idIn, desc.Label, b), nil
}

// mapAtCreation maps the whole buffer. Buffers without MAP_WRITE are
// written through host staging memory that Unmap uploads.
func (b *Buffer) mapAtCreation() error {
	b.state = mapMappedAtCreation
	b.mode = MapModeWrite
	b.mapOffset, b.mapSize = 0, b.size
	if b.size == 0 {
		return nil
	}
	if !b.usage.Contains(gputypes.BufferUsageMapWrite) {
		b.staging = make([]byte, b.size)
		b.mapping = b.staging
		return nil
	}
	m, err := b.device.raw.MapBuffer(b.raw, 0, b.size)
	if err != nil {
		return fmt.Errorf("wgcore: map at creation: %w", err)
	}
	b.mapping = unsafe.Slice((*byte)(m.Ptr), b.size)
	return nil
}

// CreateBufferError binds idIn to an error record so that every later use
// of the identifier reports cause.
func createBufferError[A API](g *Global, idIn id.BufferID, label string, cause error) id.BufferID {
	return assignError(hubOf[A](g).buffers, idIn, label, cause)
}

func bufferLabel[A API](g *Global, buffer id.BufferID) string {
	return labelOf[A](hubOf[A](g).buffers, buffer)
}

// bufferDestroy frees the GPU memory but keeps the identifier registered;
// later uses fail with ErrDestroyed.
func bufferDestroy[A API](g *Global, buffer id.BufferID) error {
	b, err := resolve[A](hubOf[A](g).buffers, buffer)
	if err != nil {
		return err
	}
	b.destroy()
	return nil
}

func (b *Buffer) destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	last := b.lastSubmission
	b.mu.Unlock()

	b.abortMap()
	d := b.device
	raw := b.raw
	d.deferDestroy(last, func() { d.raw.DestroyBuffer(raw) })
}

// release destroys the HAL buffer immediately, for teardown after the
// device went idle. A buffer already handed to the device by destroy is
// left to the device.
func (b *Buffer) release() {
	b.mu.Lock()
	done := b.destroyed
	b.destroyed = true
	b.mu.Unlock()
	if done {
		return
	}
	b.abortMap()
	b.device.raw.DestroyBuffer(b.raw)
}

// bufferDrop unregisters the buffer. With wait set it blocks until the
// buffer is no longer in use by the GPU.
func bufferDrop[A API](g *Global, buffer id.BufferID, wait bool) {
	b, ok := unregister[A](hubOf[A](g).buffers, buffer)
	if !ok {
		return
	}
	b.destroy()
	if wait {
		if err := b.device.raw.WaitIdle(); err != nil {
			Logger().Warn("wgcore: wait idle on buffer drop", "buffer", buffer, "err", err)
		}
		b.device.maintain()
	}
}

// bufferMapAsync requests a mapping of [offset, offset+size). A zero size
// maps the rest of the buffer. The callback runs from Poll once the buffer
// is no longer used by pending submissions.
func bufferMapAsync[A API](g *Global, buffer id.BufferID, offset, size uint64, mode MapMode, callback BufferMapCallback) error {
	b, err := resolve[A](hubOf[A](g).buffers, buffer)
	if err != nil {
		return err
	}
	if err := b.device.check(); err != nil {
		return err
	}
	var need gputypes.BufferUsage
	switch mode {
	case MapModeRead:
		need = gputypes.BufferUsageMapRead
	case MapModeWrite:
		need = gputypes.BufferUsageMapWrite
	default:
		return fmt.Errorf("%w: map mode %d", ErrInvalidUsage, mode)
	}
	if !b.usage.Contains(need) {
		return &UsageError{Kind: id.KindBuffer, ID: buffer.Raw(), Actual: uint64(b.usage), Expected: uint64(need)}
	}
	if offset%mapAlignment != 0 {
		return fmt.Errorf("%w: map offset %d", ErrUnaligned, offset)
	}
	if offset > b.size {
		return fmt.Errorf("%w: map offset %d past size %d", ErrOutOfBounds, offset, b.size)
	}
	if size == 0 {
		size = b.size - offset
	}
	if size%copyBufferAlignment != 0 {
		return fmt.Errorf("%w: map size %d", ErrUnaligned, size)
	}
	if size > b.size-offset {
		return fmt.Errorf("%w: map size %d at offset %d past size %d", ErrOutOfBounds, size, offset, b.size)
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrDestroyed
	}
	if b.state != mapUnmapped {
		b.mu.Unlock()
		return ErrBufferAlreadyMapped
	}
	b.state = mapPending
	b.mode = mode
	b.mapOffset, b.mapSize = offset, size
	b.callback = callback
	b.mu.Unlock()

	d := b.device
	d.mu.Lock()
	d.pendingMaps = append(d.pendingMaps, b)
	d.mu.Unlock()
	return nil
}

// resolveMap completes a pending map and runs its callback.
func (b *Buffer) resolveMap() {
	b.mu.Lock()
	if b.state != mapPending {
		b.mu.Unlock()
		return
	}
	var err error
	if b.mapSize > 0 {
		var m hal.BufferMapping
		m, err = b.device.raw.MapBuffer(b.raw, b.mapOffset, b.mapSize)
		if err == nil {
			b.mapping = unsafe.Slice((*byte)(m.Ptr), b.mapSize)
		}
	}
	if err != nil {
		b.state = mapUnmapped
		err = fmt.Errorf("wgcore: map buffer: %w", err)
	} else {
		b.state = mapMapped
	}
	cb := b.callback
	b.callback = nil
	b.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// abortMap cancels a pending map, reporting ErrMapAborted to its callback.
func (b *Buffer) abortMap() {
	b.mu.Lock()
	if b.state != mapPending {
		b.mu.Unlock()
		return
	}
	b.state = mapUnmapped
	cb := b.callback
	b.callback = nil
	b.mu.Unlock()
	if cb != nil {
		cb(ErrMapAborted)
	}
}

// bufferGetMappedRange returns [offset, offset+size) of the mapped range,
// where offset is relative to the buffer start. A zero size returns the
// rest of the mapped range.
func bufferGetMappedRange[A API](g *Global, buffer id.BufferID, offset, size uint64) ([]byte, error) {
	b, err := resolve[A](hubOf[A](g).buffers, buffer)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, ErrDestroyed
	}
	if b.state != mapMapped && b.state != mapMappedAtCreation {
		return nil, ErrBufferNotMapped
	}
	if offset%mapAlignment != 0 {
		return nil, fmt.Errorf("%w: range offset %d", ErrUnaligned, offset)
	}
	end := b.mapOffset + b.mapSize
	if offset < b.mapOffset || offset > end {
		return nil, fmt.Errorf("%w: offset %d outside mapped range %d..%d", ErrOutOfBounds, offset, b.mapOffset, end)
	}
	if size == 0 {
		size = end - offset
	}
	if size%copyBufferAlignment != 0 {
		return nil, fmt.Errorf("%w: range size %d", ErrUnaligned, size)
	}
	if size > end-offset {
		return nil, fmt.Errorf("%w: range size %d at offset %d outside mapped range %d..%d", ErrOutOfBounds, size, offset, b.mapOffset, end)
	}
	start := offset - b.mapOffset
	return b.mapping[start : start+size : start+size], nil
}

// bufferUnmap ends a mapping. Writes to a staged mapped-at-creation buffer
// are uploaded through the queue. Unmapping an unmapped buffer does
// nothing; unmapping a pending map aborts it.
func bufferUnmap[A API](g *Global, buffer id.BufferID) error {
	b, err := resolve[A](hubOf[A](g).buffers, buffer)
	if err != nil {
		return err
	}
	return b.unmap()
}

func (b *Buffer) unmap() error {
	b.mu.Lock()
	switch b.state {
	case mapUnmapped:
		b.mu.Unlock()
		return nil
	case mapPending:
		b.mu.Unlock()
		b.abortMap()
		return nil
	}
	staging := b.staging
	direct := b.mapping != nil && staging == nil
	b.state = mapUnmapped
	b.mapping, b.staging = nil, nil
	b.mapOffset, b.mapSize = 0, 0
	destroyed := b.destroyed
	b.mu.Unlock()

	if destroyed {
		return nil
	}
	d := b.device
	if staging != nil {
		if err := d.queue.raw.WriteBuffer(b.raw, 0, staging); err != nil {
			return fmt.Errorf("wgcore: upload staged contents: %w", err)
		}
	}
	if direct {
		if err := d.raw.UnmapBuffer(b.raw); err != nil {
			return fmt.Errorf("wgcore: unmap buffer: %w", err)
		}
	}
	return nil
}
