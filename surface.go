package wgcore

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

// InstanceCreateSurface creates a surface for a native window on every
// live backend instance. It fails only if no backend could create one.
func (g *Global) InstanceCreateSurface(displayHandle, windowHandle uintptr, idIn id.SurfaceID) (id.SurfaceID, error) {
	raw := make(map[gputypes.Backend]hal.Surface)
	var last error
	for _, b := range g.instance.Backends() {
		s, err := g.instance.raw[b].CreateSurface(displayHandle, windowHandle)
		if err != nil {
			Logger().Warn("wgcore: create surface", "backend", b, "err", err)
			last = err
			continue
		}
		raw[b] = s
	}
	if len(raw) == 0 {
		err := fmt.Errorf("%w: %w", ErrSurfaceUnsupported, last)
		if last == nil {
			err = fmt.Errorf("%w: no backend instance", ErrSurfaceUnsupported)
		}
		return assignError(g.surfaces, idIn, "", err), err
	}
	return assign(g.surfaces, idIn, "", newSurface(raw)), nil
}

// Surface returns the surface registered under surface.
func (g *Global) Surface(surface id.SurfaceID) (*Surface, error) {
	return g.surfaces.Get(surface.Raw())
}

// SurfaceDrop unregisters a surface and destroys it on every backend.
// It panics if the surface has holders added by Retain.
func (g *Global) SurfaceDrop(surface id.SurfaceID) {
	s, err := g.surfaces.Get(surface.Raw())
	if err != nil {
		return
	}
	if s.refs.Load() != 1 {
		panic("wgcore: surface cannot be destroyed because it is still in use")
	}
	g.surfaces.Unregister(surface.Raw())
	s.unconfigure(nil)
	s.destroyRaw()
}

// unconfigure discards the acquired texture and unconfigures s if it is
// configured on d. A nil d matches any device.
func (s *Surface) unconfigure(d *Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || d != nil && s.device != d {
		return
	}
	if raw, ok := s.raw[s.device.adapter.raw.Info.Backend]; ok {
		if s.acquired != nil {
			if st, ok := s.acquired.raw.(hal.SurfaceTexture); ok {
				raw.DiscardTexture(st)
			}
		}
		raw.Unconfigure(s.device.raw)
	}
	s.acquired, s.acquiredID = nil, 0
	s.device, s.config = nil, nil
}

func (s *Surface) destroyRaw() {
	for b, raw := range s.raw {
		raw.Destroy()
		delete(s.raw, b)
	}
}

func surfaceRaw[A API](g *Global, surface id.SurfaceID) (*Surface, hal.Surface, error) {
	s, err := g.surfaces.Get(surface.Raw())
	if err != nil {
		return nil, nil, err
	}
	var a A
	raw, ok := s.raw[a.Variant()]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no %v surface", ErrSurfaceUnsupported, a.Variant())
	}
	return s, raw, nil
}

func surfaceGetCapabilities[A API](g *Global, surface id.SurfaceID, adapter id.AdapterID) (*hal.SurfaceCapabilities, error) {
	_, raw, err := surfaceRaw[A](g, surface)
	if err != nil {
		return nil, err
	}
	a, err := resolve[A](hubOf[A](g).adapters, adapter)
	if err != nil {
		return nil, err
	}
	caps := a.raw.Adapter.SurfaceCapabilities(raw)
	if caps == nil {
		return nil, ErrSurfaceUnsupported
	}
	return caps, nil
}

func surfaceConfigure[A API](g *Global, surface id.SurfaceID, device id.DeviceID, config *SurfaceConfiguration) error {
	s, raw, err := surfaceRaw[A](g, surface)
	if err != nil {
		return err
	}
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return err
	}
	if err := d.check(); err != nil {
		return err
	}
	caps := d.adapter.raw.Adapter.SurfaceCapabilities(raw)
	if caps == nil {
		return ErrSurfaceUnsupported
	}
	if err := validateSurfaceConfiguration(d, caps, config); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired != nil {
		return fmt.Errorf("%w: a surface texture is still acquired", ErrInvalidUsage)
	}
	if s.device != nil && s.device != d {
		raw.Unconfigure(s.device.raw)
	}
	if err := raw.Configure(d.raw, config); err != nil {
		s.device, s.config = nil, nil
		return fmt.Errorf("wgcore: configure surface: %w", err)
	}
	c := *config
	s.device, s.config = d, &c
	Logger().Debug("wgcore: surface configured", "surface", surface, "width", c.Width, "height", c.Height, "format", c.Format)
	return nil
}

func validateSurfaceConfiguration(d *Device, caps *hal.SurfaceCapabilities, c *SurfaceConfiguration) error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: surface size %dx%d", ErrInvalidSize, c.Width, c.Height)
	}
	if c.Width > d.limits.MaxTextureDimension2D || c.Height > d.limits.MaxTextureDimension2D {
		return fmt.Errorf("%w: surface size %dx%d, limit %d", ErrLimitsExceeded, c.Width, c.Height, d.limits.MaxTextureDimension2D)
	}
	if !c.Usage.Contains(gputypes.TextureUsageRenderAttachment) {
		return fmt.Errorf("%w: surface usage needs RenderAttachment", ErrInvalidUsage)
	}
	if len(caps.Formats) > 0 && !slices.Contains(caps.Formats, c.Format) {
		return fmt.Errorf("%w: surface format %v, supported %v", ErrFormat, c.Format, caps.Formats)
	}
	if len(caps.PresentModes) > 0 && !slices.Contains(caps.PresentModes, c.PresentMode) {
		return fmt.Errorf("%w: present mode %v", ErrSurfaceUnsupported, c.PresentMode)
	}
	if len(caps.AlphaModes) > 0 && c.AlphaMode != gputypes.CompositeAlphaModeAuto && !slices.Contains(caps.AlphaModes, c.AlphaMode) {
		return fmt.Errorf("%w: alpha mode %v", ErrSurfaceUnsupported, c.AlphaMode)
	}
	return nil
}

// SurfaceTexture is the result of acquiring the next frame of a surface.
type SurfaceTexture struct {
	Texture    id.TextureID
	Suboptimal bool
}

func surfaceGetCurrentTexture[A API](g *Global, surface id.SurfaceID, idIn id.TextureID) (SurfaceTexture, error) {
	s, raw, err := surfaceRaw[A](g, surface)
	if err != nil {
		return SurfaceTexture{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil || s.device == nil {
		return SurfaceTexture{}, ErrSurfaceNotConfigured
	}
	if err := s.device.check(); err != nil {
		return SurfaceTexture{}, err
	}
	if s.acquired != nil {
		return SurfaceTexture{}, fmt.Errorf("%w: the previous texture was not presented or discarded", ErrInvalidUsage)
	}
	acq, err := raw.AcquireTexture(nil)
	if err != nil {
		return SurfaceTexture{}, fmt.Errorf("%w: %w", ErrNoSurfaceTexture, err)
	}
	c := s.config
	t := &Texture{
		device: s.device,
		raw:    acq.Texture,
		desc: TextureDescriptor{
			Label:         "surface",
			Size:          Extent3D{Width: c.Width, Height: c.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        c.Format,
			Usage:         c.Usage,
		},
		surface: s,
	}
	tid := assign(hubOf[A](g).textures, idIn, "surface", t)
	s.acquired, s.acquiredID = t, tid
	return SurfaceTexture{Texture: tid, Suboptimal: acq.Suboptimal}, nil
}

// takeAcquired detaches the acquired texture and unregisters its
// identifier.
func takeAcquired[A API](g *Global, s *Surface) (*Texture, error) {
	t := s.acquired
	if t == nil {
		return nil, ErrNoSurfaceTexture
	}
	h := hubOf[A](g)
	if h.textures.Contains(s.acquiredID.Raw()) {
		h.textures.Unregister(s.acquiredID.Raw())
	}
	s.acquired, s.acquiredID = nil, 0
	return t, nil
}

func surfacePresent[A API](g *Global, surface id.SurfaceID) error {
	s, raw, err := surfaceRaw[A](g, surface)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := takeAcquired[A](g, s)
	if err != nil {
		return err
	}
	st, ok := t.raw.(hal.SurfaceTexture)
	if !ok {
		return fmt.Errorf("%w: acquired texture is not a surface texture", ErrNoSurfaceTexture)
	}
	if err := s.device.queue.raw.Present(raw, st, nil); err != nil {
		s.device.loseDevice(DeviceLostReasonUnknown, err.Error())
		return fmt.Errorf("wgcore: present: %w", err)
	}
	return nil
}

func surfaceTextureDiscard[A API](g *Global, surface id.SurfaceID) error {
	s, raw, err := surfaceRaw[A](g, surface)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := takeAcquired[A](g, s)
	if err != nil {
		return err
	}
	if st, ok := t.raw.(hal.SurfaceTexture); ok {
		raw.DiscardTexture(st)
	}
	return nil
}
