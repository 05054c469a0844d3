package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

func validateTextureDescriptor(d *Device, desc *TextureDescriptor) error {
	if desc.Usage == 0 || desc.Usage.ContainsUnknownBits() {
		return fmt.Errorf("%w: %#x", ErrInvalidUsage, uint64(desc.Usage))
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("%w: undefined", ErrFormat)
	}
	s := desc.Size
	if s.Width == 0 || s.Height == 0 || s.DepthOrArrayLayers == 0 {
		return fmt.Errorf("%w: texture extent %dx%dx%d", ErrInvalidSize, s.Width, s.Height, s.DepthOrArrayLayers)
	}
	l := d.limits
	switch desc.Dimension {
	case gputypes.TextureDimension1D:
		if s.Width > l.MaxTextureDimension1D || s.Height != 1 {
			return fmt.Errorf("%w: 1D texture %dx%d", ErrInvalidSize, s.Width, s.Height)
		}
	case gputypes.TextureDimension3D:
		if s.Width > l.MaxTextureDimension3D || s.Height > l.MaxTextureDimension3D || s.DepthOrArrayLayers > l.MaxTextureDimension3D {
			return fmt.Errorf("%w: 3D texture %dx%dx%d", ErrInvalidSize, s.Width, s.Height, s.DepthOrArrayLayers)
		}
	default:
		if s.Width > l.MaxTextureDimension2D || s.Height > l.MaxTextureDimension2D || s.DepthOrArrayLayers > l.MaxTextureArrayLayers {
			return fmt.Errorf("%w: 2D texture %dx%dx%d", ErrInvalidSize, s.Width, s.Height, s.DepthOrArrayLayers)
		}
	}
	switch desc.SampleCount {
	case 0, 1:
	case 4:
		if desc.MipLevelCount > 1 || desc.Usage.Contains(gputypes.TextureUsageStorageBinding) {
			return fmt.Errorf("%w: multisampled textures need one mip level and no storage usage", ErrSampleCount)
		}
	default:
		return fmt.Errorf("%w: %d", ErrSampleCount, desc.SampleCount)
	}
	caps := d.adapter.raw.Adapter.TextureFormatCapabilities(desc.Format).Flags
	if desc.Usage.Contains(gputypes.TextureUsageRenderAttachment) && caps&hal.TextureFormatCapabilityRenderAttachment == 0 {
		return fmt.Errorf("%w: %v is not renderable", ErrFormat, desc.Format)
	}
	if desc.Usage.Contains(gputypes.TextureUsageStorageBinding) && caps&hal.TextureFormatCapabilityStorage == 0 {
		return fmt.Errorf("%w: %v has no storage support", ErrFormat, desc.Format)
	}
	return nil
}

func deviceCreateTexture[A API](g *Global, device id.DeviceID, desc *TextureDescriptor, idIn id.TextureID) (id.TextureID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.TextureID, error) {
		return assignError(h.textures, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	if err := validateTextureDescriptor(d, desc); err != nil {
		return fail(err)
	}
	t := *desc
	if t.MipLevelCount == 0 {
		t.MipLevelCount = 1
	}
	if t.SampleCount == 0 {
		t.SampleCount = 1
	}
	if t.Dimension == gputypes.TextureDimensionUndefined {
		t.Dimension = gputypes.TextureDimension2D
	}
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         t.Label,
		Size:          t.Size,
		MipLevelCount: t.MipLevelCount,
		SampleCount:   t.SampleCount,
		Dimension:     t.Dimension,
		Format:        t.Format,
		Usage:         t.Usage,
		ViewFormats:   t.ViewFormats,
	})
	if err != nil {
		return fail(fmt.Errorf("wgcore: create texture: %w", err))
	}
	Logger().Debug("wgcore: texture created", "label", desc.Label, "format", desc.Format)
	return assign(h.textures, idIn, desc.Label, &Texture{device: d, raw: raw, desc: t}), nil
}

func createTextureError[A API](g *Global, idIn id.TextureID, label string, cause error) id.TextureID {
	return assignError(hubOf[A](g).textures, idIn, label, cause)
}

func textureLabel[A API](g *Global, texture id.TextureID) string {
	return labelOf[A](hubOf[A](g).textures, texture)
}

func textureDestroy[A API](g *Global, texture id.TextureID) error {
	t, err := resolve[A](hubOf[A](g).textures, texture)
	if err != nil {
		return err
	}
	t.destroy()
	return nil
}

func (t *Texture) destroy() {
	t.mu.Lock()
	if t.destroyed || t.surface != nil {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	last := t.lastSubmission
	t.mu.Unlock()
	d, raw := t.device, t.raw
	d.deferDestroy(last, func() { d.raw.DestroyTexture(raw) })
}

// release is destroy without the wait for the last submission. Surface
// textures are left to their surface.
func (t *Texture) release() {
	t.mu.Lock()
	skip := t.destroyed || t.surface != nil
	t.destroyed = true
	t.mu.Unlock()
	if !skip {
		t.device.raw.DestroyTexture(t.raw)
	}
}

func textureDrop[A API](g *Global, texture id.TextureID, wait bool) {
	t, ok := unregister[A](hubOf[A](g).textures, texture)
	if !ok {
		return
	}
	t.destroy()
	if wait {
		if err := t.device.raw.WaitIdle(); err != nil {
			Logger().Warn("wgcore: wait idle on texture drop", "texture", texture, "err", err)
		}
		t.device.maintain()
	}
}

func textureCreateView[A API](g *Global, texture id.TextureID, desc *TextureViewDescriptor, idIn id.TextureViewID) (id.TextureViewID, error) {
	h := hubOf[A](g)
	if desc == nil {
		desc = &TextureViewDescriptor{}
	}
	fail := func(err error) (id.TextureViewID, error) {
		return assignError(h.textureViews, idIn, desc.Label, err), err
	}
	t, err := resolve[A](h.textures, texture)
	if err != nil {
		return fail(err)
	}
	if err := t.device.check(); err != nil {
		return fail(err)
	}
	t.mu.Lock()
	destroyed := t.destroyed
	t.mu.Unlock()
	if destroyed {
		return fail(ErrDestroyed)
	}

	v := *desc
	if v.Format == gputypes.TextureFormatUndefined {
		v.Format = t.desc.Format
	}
	if v.MipLevelCount == 0 {
		v.MipLevelCount = t.desc.MipLevelCount - v.BaseMipLevel
	}
	if v.ArrayLayerCount == 0 {
		layers := uint32(1)
		if t.desc.Dimension != gputypes.TextureDimension3D {
			layers = t.desc.Size.DepthOrArrayLayers
		}
		v.ArrayLayerCount = layers - v.BaseArrayLayer
	}
	if v.BaseMipLevel+v.MipLevelCount > t.desc.MipLevelCount {
		return fail(fmt.Errorf("%w: mip levels %d..%d of %d", ErrOutOfBounds, v.BaseMipLevel, v.BaseMipLevel+v.MipLevelCount, t.desc.MipLevelCount))
	}
	if v.Dimension == gputypes.TextureViewDimensionUndefined {
		v.Dimension = defaultViewDimension(t.desc.Dimension, v.ArrayLayerCount)
	}

	raw, err := t.device.raw.CreateTextureView(t.raw, &v)
	if err != nil {
		return fail(fmt.Errorf("wgcore: create texture view: %w", err))
	}
	return assign(h.textureViews, idIn, desc.Label, &TextureView{device: t.device, texture: t, raw: raw, desc: v}), nil
}

func defaultViewDimension(dim gputypes.TextureDimension, layers uint32) gputypes.TextureViewDimension {
	switch dim {
	case gputypes.TextureDimension1D:
		return gputypes.TextureViewDimension1D
	case gputypes.TextureDimension3D:
		return gputypes.TextureViewDimension3D
	}
	if layers > 1 {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

func textureViewLabel[A API](g *Global, view id.TextureViewID) string {
	return labelOf[A](hubOf[A](g).textureViews, view)
}

func textureViewDrop[A API](g *Global, view id.TextureViewID, wait bool) error {
	v, ok := unregister[A](hubOf[A](g).textureViews, view)
	if !ok {
		return nil
	}
	d := v.device
	v.texture.mu.Lock()
	last := v.texture.lastSubmission
	v.texture.mu.Unlock()
	d.deferDestroy(last, func() { d.raw.DestroyTextureView(v.raw) })
	if wait {
		if err := d.raw.WaitIdle(); err != nil {
			return fmt.Errorf("wgcore: wait idle on view drop: %w", err)
		}
		d.maintain()
	}
	return nil
}

func deviceCreateSampler[A API](g *Global, device id.DeviceID, desc *SamplerDescriptor, idIn id.SamplerID) (id.SamplerID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.SamplerID, error) {
		return assignError(h.samplers, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	if desc.LodMinClamp < 0 || desc.LodMaxClamp < desc.LodMinClamp {
		return fail(fmt.Errorf("%w: lod clamp %v..%v", ErrInvalidSize, desc.LodMinClamp, desc.LodMaxClamp))
	}
	if desc.Anisotropy > 1 {
		if err := d.requireDownlevel(hal.DownlevelFlagsAnisotropicFiltering); err != nil {
			return fail(err)
		}
	}
	raw, err := d.raw.CreateSampler(desc)
	if err != nil {
		return fail(fmt.Errorf("wgcore: create sampler: %w", err))
	}
	return assign(h.samplers, idIn, desc.Label, &Sampler{device: d, raw: raw, desc: *desc}), nil
}

func samplerLabel[A API](g *Global, sampler id.SamplerID) string {
	return labelOf[A](hubOf[A](g).samplers, sampler)
}

func samplerDrop[A API](g *Global, sampler id.SamplerID) {
	if s, ok := unregister[A](hubOf[A](g).samplers, sampler); ok {
		s.device.raw.DestroySampler(s.raw)
	}
}
