package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

func queueOf[A API](g *Global, queue id.QueueID) (*Queue, error) {
	q, err := resolve[A](hubOf[A](g).queues, queue)
	if err != nil {
		return nil, err
	}
	if err := q.device.check(); err != nil {
		return nil, err
	}
	return q, nil
}

// queueSubmit submits finished command buffers in order and returns the
// submission index. Every buffer is validated before anything is
// submitted.
func queueSubmit[A API](g *Global, queue id.QueueID, buffers []id.CommandBufferID) (uint64, error) {
	h := hubOf[A](g)
	q, err := queueOf[A](g, queue)
	if err != nil {
		return 0, err
	}
	cbs := make([]*CommandBuffer, len(buffers))
	raws := make([]hal.CommandBuffer, len(buffers))
	for i, bid := range buffers {
		cb, err := resolve[A](h.commandBuffers, bid)
		if err != nil {
			return 0, fmt.Errorf("command buffer %d: %w", i, err)
		}
		if cb.device != q.device {
			return 0, fmt.Errorf("command buffer %d: %w", i, ErrDeviceMismatch)
		}
		cb.mu.Lock()
		state := cb.state
		cb.mu.Unlock()
		switch state {
		case encoderFinished:
		case encoderSubmitted:
			return 0, fmt.Errorf("command buffer %d: %w", i, ErrCommandBufferSubmitted)
		default:
			return 0, fmt.Errorf("command buffer %d: %w: %v", i, ErrEncoderState, state)
		}
		if err := cb.checkResources(); err != nil {
			return 0, fmt.Errorf("command buffer %d: %w", i, err)
		}
		cbs[i], raws[i] = cb, cb.raw
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	index, err := q.raw.Submit(raws)
	if err != nil {
		return 0, fmt.Errorf("wgcore: submit: %w", err)
	}
	q.lastSubmission = index
	for _, cb := range cbs {
		cb.mu.Lock()
		cb.state = encoderSubmitted
		cb.submission = index
		for _, b := range cb.buffers {
			b.mu.Lock()
			b.lastSubmission = index
			b.mu.Unlock()
		}
		for _, t := range cb.textures {
			t.mu.Lock()
			t.lastSubmission = index
			t.mu.Unlock()
		}
		cb.mu.Unlock()
	}
	Logger().Debug("wgcore: submitted", "queue", queue, "command_buffers", len(buffers), "index", index)
	return index, nil
}

// checkResources fails if a resource used by cb was destroyed or a buffer
// is mapped.
func (cb *CommandBuffer) checkResources() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for _, b := range cb.buffers {
		b.mu.Lock()
		destroyed, state := b.destroyed, b.state
		b.mu.Unlock()
		if destroyed {
			return fmt.Errorf("buffer: %w", ErrDestroyed)
		}
		if state != mapUnmapped {
			return fmt.Errorf("%w: a used buffer is mapped", ErrBufferAlreadyMapped)
		}
	}
	for _, t := range cb.textures {
		t.mu.Lock()
		destroyed := t.destroyed
		t.mu.Unlock()
		if destroyed {
			return fmt.Errorf("texture: %w", ErrDestroyed)
		}
	}
	return nil
}

// queueValidateWriteBuffer checks a WriteBuffer of size bytes at offset
// without performing it.
func queueValidateWriteBuffer[A API](g *Global, queue id.QueueID, buffer id.BufferID, offset, size uint64) error {
	q, err := queueOf[A](g, queue)
	if err != nil {
		return err
	}
	_, err = writableBuffer[A](g, q, buffer, offset, size)
	return err
}

func writableBuffer[A API](g *Global, q *Queue, buffer id.BufferID, offset, size uint64) (*Buffer, error) {
	b, err := resolve[A](hubOf[A](g).buffers, buffer)
	if err != nil {
		return nil, err
	}
	if b.device != q.device {
		return nil, ErrDeviceMismatch
	}
	if err := requireBufferUsage(b, buffer.Raw(), gputypes.BufferUsageCopyDst); err != nil {
		return nil, err
	}
	if err := checkBufferRange(b, offset, size); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, ErrDestroyed
	}
	if b.state != mapUnmapped {
		return nil, ErrBufferAlreadyMapped
	}
	return b, nil
}

func queueWriteBuffer[A API](g *Global, queue id.QueueID, buffer id.BufferID, offset uint64, data []byte) error {
	q, err := queueOf[A](g, queue)
	if err != nil {
		return err
	}
	b, err := writableBuffer[A](g, q, buffer, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := q.raw.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("wgcore: write buffer: %w", err)
	}
	return nil
}

// queueCreateStagingBuffer allocates size bytes of host memory to be
// filled by the caller and consumed by queueWriteStagingBuffer.
func queueCreateStagingBuffer[A API](g *Global, queue id.QueueID, size uint64, idIn id.StagingBufferID) (id.StagingBufferID, []byte, error) {
	h := hubOf[A](g)
	q, err := queueOf[A](g, queue)
	if err != nil {
		return assignError(h.stagingBuffers, idIn, "", err), nil, err
	}
	if size > q.device.limits.MaxBufferSize {
		err := fmt.Errorf("%w: staging size %d exceeds %d", ErrInvalidSize, size, q.device.limits.MaxBufferSize)
		return assignError(h.stagingBuffers, idIn, "", err), nil, err
	}
	s := &StagingBuffer{device: q.device, data: make([]byte, size)}
	return assign(h.stagingBuffers, idIn, "", s), s.data, nil
}

// queueWriteStagingBuffer uploads a staging buffer and unregisters it.
func queueWriteStagingBuffer[A API](g *Global, queue id.QueueID, buffer id.BufferID, offset uint64, staging id.StagingBufferID) error {
	h := hubOf[A](g)
	q, err := queueOf[A](g, queue)
	if err != nil {
		return err
	}
	s, err := resolve[A](h.stagingBuffers, staging)
	if err != nil {
		return err
	}
	h.stagingBuffers.Unregister(staging.Raw())
	if s.device != q.device {
		return ErrDeviceMismatch
	}
	b, err := writableBuffer[A](g, q, buffer, offset, uint64(len(s.data)))
	if err != nil {
		return err
	}
	if len(s.data) == 0 {
		return nil
	}
	if err := q.raw.WriteBuffer(b.raw, offset, s.data); err != nil {
		return fmt.Errorf("wgcore: write staging buffer: %w", err)
	}
	return nil
}

func queueWriteTexture[A API](g *Global, queue id.QueueID, dst *ImageCopyTexture, data []byte, layout *ImageDataLayout, size *Extent3D) error {
	q, err := queueOf[A](g, queue)
	if err != nil {
		return err
	}
	t, err := resolve[A](hubOf[A](g).textures, dst.Texture)
	if err != nil {
		return err
	}
	if t.device != q.device {
		return ErrDeviceMismatch
	}
	if err := requireTextureUsage(t, dst.Texture.Raw(), gputypes.TextureUsageCopyDst); err != nil {
		return err
	}
	if err := checkTextureCopy(t, dst, size); err != nil {
		return err
	}
	if layout.Offset > uint64(len(data)) {
		return fmt.Errorf("%w: layout offset %d past %d bytes of data", ErrOutOfBounds, layout.Offset, len(data))
	}
	if t.isDestroyed() {
		return ErrDestroyed
	}
	target := halCopyTexture(t, dst)
	if err := q.raw.WriteTexture(&target, data, layout, size); err != nil {
		return fmt.Errorf("wgcore: write texture: %w", err)
	}
	return nil
}

func (t *Texture) isDestroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// queueGetTimestampPeriod returns the nanoseconds per timestamp tick.
func queueGetTimestampPeriod[A API](g *Global, queue id.QueueID) (float32, error) {
	q, err := queueOf[A](g, queue)
	if err != nil {
		return 0, err
	}
	return q.raw.GetTimestampPeriod(), nil
}

// queueOnSubmittedWorkDone runs fn from a later poll once everything
// submitted so far has completed.
func queueOnSubmittedWorkDone[A API](g *Global, queue id.QueueID, fn func()) error {
	q, err := queueOf[A](g, queue)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.workDone = append(q.workDone, workDoneCallback{submission: q.lastSubmission, fn: fn})
	q.mu.Unlock()
	return nil
}

// fireWorkDone runs the callbacks whose submission has completed.
func (q *Queue) fireWorkDone(completed uint64) {
	q.mu.Lock()
	var ready []func()
	kept := q.workDone[:0]
	for _, w := range q.workDone {
		if w.submission <= completed {
			ready = append(ready, w.fn)
		} else {
			kept = append(kept, w)
		}
	}
	q.workDone = kept
	q.mu.Unlock()
	for _, fn := range ready {
		if fn != nil {
			fn()
		}
	}
}

// idle reports whether every submission has completed and no callbacks
// are waiting.
func (q *Queue) idle(completed uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSubmission <= completed && len(q.workDone) == 0
}

// queueDrop unregisters the queue. The device keeps using it until the
// device itself is dropped.
func queueDrop[A API](g *Global, queue id.QueueID) {
	unregister[A](hubOf[A](g).queues, queue)
}
