package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

const (
	// copyBytesPerRowAlignment is the alignment of BytesPerRow in
	// buffer/texture copies.
	copyBytesPerRowAlignment = 256
	// queryResolveAlignment is the alignment of ResolveQuerySet offsets.
	queryResolveAlignment = 256
	// querySize is the size in bytes of one resolved query.
	querySize = 8
)

func (s encoderState) String() string {
	switch s {
	case encoderRecording:
		return "recording"
	case encoderFinished:
		return "finished"
	case encoderSubmitted:
		return "submitted"
	case encoderInvalid:
		return "invalid"
	}
	return "unknown"
}

func deviceCreateCommandEncoder[A API](g *Global, device id.DeviceID, desc *CommandEncoderDescriptor, idIn id.CommandEncoderID) (id.CommandEncoderID, error) {
	h := hubOf[A](g)
	if desc == nil {
		desc = &CommandEncoderDescriptor{}
	}
	cbIn := id.Transmute[id.CommandBuffer](idIn)
	fail := func(err error) (id.CommandEncoderID, error) {
		return id.Transmute[id.CommandEncoder](assignError(h.commandBuffers, cbIn, desc.Label, err)), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	enc, err := d.raw.CreateCommandEncoder(desc)
	if err != nil {
		return fail(fmt.Errorf("wgcore: create command encoder: %w", err))
	}
	if err := enc.BeginEncoding(desc.Label); err != nil {
		enc.Destroy()
		return fail(fmt.Errorf("wgcore: begin encoding: %w", err))
	}
	cb := &CommandBuffer{device: d, encoder: enc}
	return id.Transmute[id.CommandEncoder](assign(h.commandBuffers, cbIn, desc.Label, cb)), nil
}

// record runs fn against a recording encoder. A failing fn invalidates the
// encoder, so Finish and Submit report the failure too.
func record[A API](g *Global, encoder id.CommandEncoderID, fn func(h *Hub, cb *CommandBuffer) error) error {
	h := hubOf[A](g)
	cb, err := resolve[A](h.commandBuffers, id.Transmute[id.CommandBuffer](encoder))
	if err != nil {
		return err
	}
	if err := cb.device.check(); err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != encoderRecording {
		return fmt.Errorf("%w: encoder is %v", ErrEncoderState, cb.state)
	}
	if err := fn(h, cb); err != nil {
		cb.state = encoderInvalid
		return err
	}
	return nil
}

func (cb *CommandBuffer) useBuffer(b *Buffer) error {
	if b.device != cb.device {
		return ErrDeviceMismatch
	}
	b.mu.Lock()
	destroyed := b.destroyed
	b.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	cb.buffers = append(cb.buffers, b)
	return nil
}

func (cb *CommandBuffer) useTexture(t *Texture) error {
	if t.device != cb.device {
		return ErrDeviceMismatch
	}
	t.mu.Lock()
	destroyed := t.destroyed
	t.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	cb.textures = append(cb.textures, t)
	return nil
}

func requireBufferUsage(b *Buffer, raw id.RawID, need gputypes.BufferUsage) error {
	if !b.usage.Contains(need) {
		return &UsageError{Kind: id.KindBuffer, ID: raw, Actual: uint64(b.usage), Expected: uint64(need)}
	}
	return nil
}

func requireTextureUsage(t *Texture, raw id.RawID, need gputypes.TextureUsage) error {
	if !t.desc.Usage.Contains(need) {
		return &UsageError{Kind: id.KindTexture, ID: raw, Actual: uint64(t.desc.Usage), Expected: uint64(need)}
	}
	return nil
}

func checkBufferRange(b *Buffer, offset, size uint64) error {
	if offset%copyBufferAlignment != 0 || size%copyBufferAlignment != 0 {
		return fmt.Errorf("%w: range %d+%d", ErrUnaligned, offset, size)
	}
	if offset > b.size || size > b.size-offset {
		return fmt.Errorf("%w: range %d..%d past size %d", ErrOutOfBounds, offset, offset+size, b.size)
	}
	return nil
}

func commandEncoderCopyBufferToBuffer[A API](g *Global, encoder id.CommandEncoderID, src id.BufferID, srcOffset uint64, dst id.BufferID, dstOffset, size uint64) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		if src == dst {
			return fmt.Errorf("%w: source and destination are the same buffer", ErrInvalidUsage)
		}
		sb, err := resolve[A](h.buffers, src)
		if err != nil {
			return err
		}
		db, err := resolve[A](h.buffers, dst)
		if err != nil {
			return err
		}
		if err := requireBufferUsage(sb, src.Raw(), gputypes.BufferUsageCopySrc); err != nil {
			return err
		}
		if err := requireBufferUsage(db, dst.Raw(), gputypes.BufferUsageCopyDst); err != nil {
			return err
		}
		if err := checkBufferRange(sb, srcOffset, size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkBufferRange(db, dstOffset, size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if err := cb.useBuffer(sb); err != nil {
			return err
		}
		if err := cb.useBuffer(db); err != nil {
			return err
		}
		if size == 0 {
			return nil
		}
		cb.encoder.CopyBufferToBuffer(sb.raw, db.raw, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}})
		return nil
	})
}

// mipExtent returns the size of mip level of t.
func mipExtent(t *Texture, level uint32) Extent3D {
	e := t.desc.Size
	e.Width = max(e.Width>>level, 1)
	if t.desc.Dimension != gputypes.TextureDimension1D {
		e.Height = max(e.Height>>level, 1)
	}
	if t.desc.Dimension == gputypes.TextureDimension3D {
		e.DepthOrArrayLayers = max(e.DepthOrArrayLayers>>level, 1)
	}
	return e
}

// checkTextureCopy validates one side of a copy against its texture.
func checkTextureCopy(t *Texture, c *ImageCopyTexture, size *Extent3D) error {
	if c.MipLevel >= t.desc.MipLevelCount {
		return fmt.Errorf("%w: mip level %d of %d", ErrOutOfBounds, c.MipLevel, t.desc.MipLevelCount)
	}
	m := mipExtent(t, c.MipLevel)
	if c.Origin.X+size.Width > m.Width || c.Origin.Y+size.Height > m.Height || c.Origin.Z+size.DepthOrArrayLayers > m.DepthOrArrayLayers {
		return fmt.Errorf("%w: copy %v+%v exceeds mip extent %v", ErrOutOfBounds, c.Origin, *size, m)
	}
	if t.desc.SampleCount > 1 {
		return fmt.Errorf("%w: multisampled textures cannot be copied", ErrSampleCount)
	}
	return nil
}

func checkBufferLayout(b *Buffer, layout *ImageDataLayout, size *Extent3D) error {
	if size.Height > 1 || size.DepthOrArrayLayers > 1 {
		if layout.BytesPerRow%copyBytesPerRowAlignment != 0 {
			return fmt.Errorf("%w: bytes per row %d", ErrUnaligned, layout.BytesPerRow)
		}
	}
	if layout.Offset > b.size {
		return fmt.Errorf("%w: layout offset %d past size %d", ErrOutOfBounds, layout.Offset, b.size)
	}
	rows := uint64(layout.RowsPerImage)
	if rows == 0 {
		rows = uint64(size.Height)
	}
	need := uint64(layout.BytesPerRow) * rows * uint64(max(size.DepthOrArrayLayers, 1))
	if need > b.size-layout.Offset {
		return fmt.Errorf("%w: copy needs %d bytes after offset %d, buffer has %d", ErrOutOfBounds, need, layout.Offset, b.size)
	}
	return nil
}

func halCopyTexture(t *Texture, c *ImageCopyTexture) hal.ImageCopyTexture {
	aspect := c.Aspect
	if aspect == gputypes.TextureAspectUndefined {
		aspect = gputypes.TextureAspectAll
	}
	return hal.ImageCopyTexture{Texture: t.raw, MipLevel: c.MipLevel, Origin: c.Origin, Aspect: aspect}
}

func commandEncoderCopyBufferToTexture[A API](g *Global, encoder id.CommandEncoderID, src *ImageCopyBuffer, dst *ImageCopyTexture, size *Extent3D) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		b, err := resolve[A](h.buffers, src.Buffer)
		if err != nil {
			return err
		}
		t, err := resolve[A](h.textures, dst.Texture)
		if err != nil {
			return err
		}
		if err := requireBufferUsage(b, src.Buffer.Raw(), gputypes.BufferUsageCopySrc); err != nil {
			return err
		}
		if err := requireTextureUsage(t, dst.Texture.Raw(), gputypes.TextureUsageCopyDst); err != nil {
			return err
		}
		if err := checkBufferLayout(b, &src.Layout, size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkTextureCopy(t, dst, size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if err := cb.useBuffer(b); err != nil {
			return err
		}
		if err := cb.useTexture(t); err != nil {
			return err
		}
		cb.encoder.CopyBufferToTexture(b.raw, t.raw, []hal.BufferTextureCopy{{
			BufferLayout: src.Layout,
			TextureBase:  halCopyTexture(t, dst),
			Size:         *size,
		}})
		return nil
	})
}

func commandEncoderCopyTextureToBuffer[A API](g *Global, encoder id.CommandEncoderID, src *ImageCopyTexture, dst *ImageCopyBuffer, size *Extent3D) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		t, err := resolve[A](h.textures, src.Texture)
		if err != nil {
			return err
		}
		b, err := resolve[A](h.buffers, dst.Buffer)
		if err != nil {
			return err
		}
		if err := requireTextureUsage(t, src.Texture.Raw(), gputypes.TextureUsageCopySrc); err != nil {
			return err
		}
		if err := requireBufferUsage(b, dst.Buffer.Raw(), gputypes.BufferUsageCopyDst); err != nil {
			return err
		}
		if err := checkTextureCopy(t, src, size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkBufferLayout(b, &dst.Layout, size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if err := cb.useTexture(t); err != nil {
			return err
		}
		if err := cb.useBuffer(b); err != nil {
			return err
		}
		cb.encoder.CopyTextureToBuffer(t.raw, b.raw, []hal.BufferTextureCopy{{
			BufferLayout: dst.Layout,
			TextureBase:  halCopyTexture(t, src),
			Size:         *size,
		}})
		return nil
	})
}

func commandEncoderCopyTextureToTexture[A API](g *Global, encoder id.CommandEncoderID, src, dst *ImageCopyTexture, size *Extent3D) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		st, err := resolve[A](h.textures, src.Texture)
		if err != nil {
			return err
		}
		dt, err := resolve[A](h.textures, dst.Texture)
		if err != nil {
			return err
		}
		if err := requireTextureUsage(st, src.Texture.Raw(), gputypes.TextureUsageCopySrc); err != nil {
			return err
		}
		if err := requireTextureUsage(dt, dst.Texture.Raw(), gputypes.TextureUsageCopyDst); err != nil {
			return err
		}
		if st.desc.Format != dt.desc.Format {
			return fmt.Errorf("%w: copy from %v to %v", ErrFormat, st.desc.Format, dt.desc.Format)
		}
		if err := checkTextureCopy(st, src, size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkTextureCopy(dt, dst, size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if err := cb.useTexture(st); err != nil {
			return err
		}
		if err := cb.useTexture(dt); err != nil {
			return err
		}
		cb.encoder.CopyTextureToTexture(st.raw, dt.raw, []hal.TextureCopy{{
			SrcBase: halCopyTexture(st, src),
			DstBase: halCopyTexture(dt, dst),
			Size:    *size,
		}})
		return nil
	})
}

// commandEncoderClearBuffer zeroes [offset, offset+size). A zero size
// clears to the end of the buffer.
func commandEncoderClearBuffer[A API](g *Global, encoder id.CommandEncoderID, buffer id.BufferID, offset, size uint64) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		b, err := resolve[A](h.buffers, buffer)
		if err != nil {
			return err
		}
		if err := requireBufferUsage(b, buffer.Raw(), gputypes.BufferUsageCopyDst); err != nil {
			return err
		}
		if size == 0 && offset <= b.size {
			size = b.size - offset
		}
		if err := checkBufferRange(b, offset, size); err != nil {
			return err
		}
		if err := cb.useBuffer(b); err != nil {
			return err
		}
		if size > 0 {
			cb.encoder.ClearBuffer(b.raw, offset, size)
		}
		return nil
	})
}

// commandEncoderClearTexture clears a subresource range to zero with one
// render pass per mip level and layer. The texture must be renderable.
func commandEncoderClearTexture[A API](g *Global, encoder id.CommandEncoderID, texture id.TextureID, rng *ImageSubresourceRange) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		t, err := resolve[A](h.textures, texture)
		if err != nil {
			return err
		}
		if err := requireTextureUsage(t, texture.Raw(), gputypes.TextureUsageRenderAttachment); err != nil {
			return err
		}
		r := *rng
		layers := t.desc.Size.DepthOrArrayLayers
		if t.desc.Dimension == gputypes.TextureDimension3D {
			layers = 1
		}
		if r.MipLevelCount == 0 {
			r.MipLevelCount = t.desc.MipLevelCount - min(r.BaseMipLevel, t.desc.MipLevelCount)
		}
		if r.ArrayLayerCount == 0 {
			r.ArrayLayerCount = layers - min(r.BaseArrayLayer, layers)
		}
		if r.BaseMipLevel+r.MipLevelCount > t.desc.MipLevelCount || r.BaseArrayLayer+r.ArrayLayerCount > layers {
			return fmt.Errorf("%w: clear range exceeds texture subresources", ErrOutOfBounds)
		}
		if r.Aspect == gputypes.TextureAspectUndefined {
			r.Aspect = gputypes.TextureAspectAll
		}
		if err := cb.useTexture(t); err != nil {
			return err
		}
		depth := t.desc.Format.IsDepthStencil()
		for mip := r.BaseMipLevel; mip < r.BaseMipLevel+r.MipLevelCount; mip++ {
			for layer := r.BaseArrayLayer; layer < r.BaseArrayLayer+r.ArrayLayerCount; layer++ {
				view, err := cb.device.raw.CreateTextureView(t.raw, &TextureViewDescriptor{
					Label:           "clear",
					Format:          t.desc.Format,
					Dimension:       gputypes.TextureViewDimension2D,
					Aspect:          r.Aspect,
					BaseMipLevel:    mip,
					MipLevelCount:   1,
					BaseArrayLayer:  layer,
					ArrayLayerCount: 1,
				})
				if err != nil {
					return fmt.Errorf("wgcore: clear texture view: %w", err)
				}
				cb.transient = append(cb.transient, view)
				desc := &hal.RenderPassDescriptor{Label: "clear"}
				if depth {
					desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
						View:           view,
						DepthLoadOp:    gputypes.LoadOpClear,
						DepthStoreOp:   gputypes.StoreOpStore,
						StencilLoadOp:  gputypes.LoadOpClear,
						StencilStoreOp: gputypes.StoreOpStore,
					}
				} else {
					desc.ColorAttachments = []hal.RenderPassColorAttachment{{
						View:    view,
						LoadOp:  gputypes.LoadOpClear,
						StoreOp: gputypes.StoreOpStore,
					}}
				}
				cb.encoder.BeginRenderPass(desc).End()
			}
		}
		return nil
	})
}

func commandEncoderPushDebugGroup[A API](g *Global, encoder id.CommandEncoderID, label string) error {
	return record[A](g, encoder, func(_ *Hub, cb *CommandBuffer) error {
		cb.debugDepth++
		cb.debugMarker("push", label)
		return nil
	})
}

func commandEncoderInsertDebugMarker[A API](g *Global, encoder id.CommandEncoderID, label string) error {
	return record[A](g, encoder, func(_ *Hub, cb *CommandBuffer) error {
		cb.debugMarker("marker", label)
		return nil
	})
}

func commandEncoderPopDebugGroup[A API](g *Global, encoder id.CommandEncoderID) error {
	return record[A](g, encoder, func(_ *Hub, cb *CommandBuffer) error {
		if cb.debugDepth == 0 {
			return fmt.Errorf("%w: pop without a matching push", ErrDebugGroup)
		}
		cb.debugDepth--
		cb.debugMarker("pop", "")
		return nil
	})
}

// debugMarker logs debug groups while a capture is running. The HAL has
// no marker entry points.
func (cb *CommandBuffer) debugMarker(kind, label string) {
	d := cb.device
	d.mu.Lock()
	capturing := d.capturing
	d.mu.Unlock()
	if capturing {
		Logger().Debug("wgcore: debug "+kind, "label", label, "depth", cb.debugDepth)
	}
}

func resolveTimestampQuery[A API](h *Hub, d *Device, querySet id.QuerySetID, indices ...*uint32) (*QuerySet, error) {
	q, err := resolve[A](h.querySets, querySet)
	if err != nil {
		return nil, err
	}
	if q.device != d {
		return nil, ErrDeviceMismatch
	}
	if q.desc.Type != hal.QueryTypeTimestamp {
		return nil, fmt.Errorf("%w: query set is not a timestamp query set", ErrInvalidUsage)
	}
	for _, i := range indices {
		if i != nil && *i >= q.desc.Count {
			return nil, fmt.Errorf("%w: query index %d of %d", ErrOutOfBounds, *i, q.desc.Count)
		}
	}
	return q, nil
}

// commandEncoderWriteTimestamp writes a timestamp at index. The HAL only
// writes timestamps at pass boundaries, so an empty compute pass carries
// it.
func commandEncoderWriteTimestamp[A API](g *Global, encoder id.CommandEncoderID, querySet id.QuerySetID, index uint32) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		if err := cb.device.requireFeatures(gputypes.Features(gputypes.FeatureTimestampQuery)); err != nil {
			return err
		}
		q, err := resolveTimestampQuery[A](h, cb.device, querySet, &index)
		if err != nil {
			return err
		}
		cb.encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label:           "timestamp",
			TimestampWrites: &hal.ComputePassTimestampWrites{QuerySet: q.raw, BeginningOfPassWriteIndex: &index},
		}).End()
		return nil
	})
}

func commandEncoderResolveQuerySet[A API](g *Global, encoder id.CommandEncoderID, querySet id.QuerySetID, first, count uint32, dst id.BufferID, dstOffset uint64) error {
	return record[A](g, encoder, func(h *Hub, cb *CommandBuffer) error {
		q, err := resolve[A](h.querySets, querySet)
		if err != nil {
			return err
		}
		if q.device != cb.device {
			return ErrDeviceMismatch
		}
		if uint64(first)+uint64(count) > uint64(q.desc.Count) {
			return fmt.Errorf("%w: queries %d..%d of %d", ErrOutOfBounds, first, first+count, q.desc.Count)
		}
		b, err := resolve[A](h.buffers, dst)
		if err != nil {
			return err
		}
		if err := requireBufferUsage(b, dst.Raw(), gputypes.BufferUsageQueryResolve); err != nil {
			return err
		}
		if dstOffset%queryResolveAlignment != 0 {
			return fmt.Errorf("%w: resolve offset %d", ErrUnaligned, dstOffset)
		}
		if err := checkBufferRange(b, dstOffset, uint64(count)*querySize); err != nil {
			return err
		}
		if err := cb.useBuffer(b); err != nil {
			return err
		}
		cb.encoder.ResolveQuerySet(q.raw, first, count, b.raw, dstOffset)
		return nil
	})
}

// commandEncoderFinish ends recording. The command buffer keeps the
// encoder's identifier.
func commandEncoderFinish[A API](g *Global, encoder id.CommandEncoderID) (id.CommandBufferID, error) {
	cbID := id.Transmute[id.CommandBuffer](encoder)
	cb, err := resolve[A](hubOf[A](g).commandBuffers, cbID)
	if err != nil {
		return cbID, err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case cb.state == encoderInvalid:
		return cbID, fmt.Errorf("%w: encoder is invalid", ErrEncoderState)
	case cb.state != encoderRecording:
		return cbID, fmt.Errorf("%w: encoder is %v", ErrEncoderState, cb.state)
	case cb.debugDepth != 0:
		cb.state = encoderInvalid
		return cbID, fmt.Errorf("%w: %d debug groups still open", ErrDebugGroup, cb.debugDepth)
	}
	raw, err := cb.encoder.EndEncoding()
	if err != nil {
		cb.state = encoderInvalid
		return cbID, fmt.Errorf("wgcore: end encoding: %w", err)
	}
	cb.raw = raw
	cb.state = encoderFinished
	return cbID, nil
}

// release frees the HAL objects once their last submission has completed.
func (cb *CommandBuffer) release() {
	cb.mu.Lock()
	state, raw, enc, views, last := cb.state, cb.raw, cb.encoder, cb.transient, cb.submission
	cb.raw, cb.transient = nil, nil
	cb.mu.Unlock()

	d := cb.device
	if state == encoderRecording || state == encoderInvalid && raw == nil {
		enc.DiscardEncoding()
	}
	d.deferDestroy(last, func() {
		if raw != nil {
			d.raw.FreeCommandBuffer(raw)
		}
		for _, v := range views {
			d.raw.DestroyTextureView(v)
		}
		enc.Destroy()
	})
}

func commandBufferLabel[A API](g *Global, buffer id.CommandBufferID) string {
	return labelOf[A](hubOf[A](g).commandBuffers, buffer)
}

func commandEncoderDrop[A API](g *Global, encoder id.CommandEncoderID) {
	if cb, ok := unregister[A](hubOf[A](g).commandBuffers, id.Transmute[id.CommandBuffer](encoder)); ok {
		cb.release()
	}
}

func commandBufferDrop[A API](g *Global, buffer id.CommandBufferID) {
	if cb, ok := unregister[A](hubOf[A](g).commandBuffers, buffer); ok {
		cb.release()
	}
}
