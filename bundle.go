package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/id"
)

// RenderBundleEncoder records a reusable sequence of render commands. It
// lives on the Go side until RenderBundleEncoderFinish replays it into the
// HAL.
type RenderBundleEncoder struct {
	renderRecorder
	device id.DeviceID
	desc   RenderBundleEncoderDescriptor
}

// Device returns the device the bundle will be created on.
func (e *RenderBundleEncoder) Device() id.DeviceID { return e.device }

func deviceCreateRenderBundleEncoder[A API](g *Global, device id.DeviceID, desc *RenderBundleEncoderDescriptor) (*RenderBundleEncoder, error) {
	d, err := resolve[A](hubOf[A](g).devices, device)
	if err != nil {
		return nil, err
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	if len(desc.ColorFormats) == 0 && desc.DepthStencilFormat == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: render bundle has no attachment formats", ErrFormat)
	}
	if n := uint32(len(desc.ColorFormats)); n > d.limits.MaxColorAttachments {
		return nil, fmt.Errorf("%w: %d color formats, limit %d", ErrLimitsExceeded, n, d.limits.MaxColorAttachments)
	}
	if desc.DepthStencilFormat != gputypes.TextureFormatUndefined && !desc.DepthStencilFormat.IsDepthStencil() {
		return nil, fmt.Errorf("%w: %v is not a depth or stencil format", ErrFormat, desc.DepthStencilFormat)
	}
	e := &RenderBundleEncoder{device: device, desc: *desc}
	switch e.desc.SampleCount {
	case 0:
		e.desc.SampleCount = 1
	case 1, 4:
	default:
		return nil, fmt.Errorf("%w: %d", ErrSampleCount, desc.SampleCount)
	}
	return e, nil
}

func renderBundleEncoderFinish[A API](g *Global, encoder *RenderBundleEncoder, desc *RenderBundleDescriptor, idIn id.RenderBundleID) (id.RenderBundleID, error) {
	h := hubOf[A](g)
	label := encoder.desc.Label
	if desc != nil && desc.Label != "" {
		label = desc.Label
	}
	fail := func(err error) (id.RenderBundleID, error) {
		return assignError(h.renderBundles, idIn, label, err), err
	}
	d, err := resolve[A](h.devices, encoder.device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	hd := encoder.desc
	hd.Label = label
	raw, err := d.raw.CreateRenderBundleEncoder(&hd)
	if err != nil {
		return fail(fmt.Errorf("wgcore: create render bundle encoder: %w", err))
	}
	r := &replayer[A]{h: h, d: d}
	for i := range encoder.commands {
		if err := r.render(raw, &encoder.commands[i]); err != nil {
			d.raw.DestroyRenderBundle(raw.Finish())
			return fail(fmt.Errorf("commands[%d] %v: %w", i, encoder.commands[i].op, err))
		}
	}
	return assign(h.renderBundles, idIn, label, &RenderBundle{device: d, raw: raw.Finish(), desc: hd}), nil
}

func createRenderBundleError[A API](g *Global, idIn id.RenderBundleID, label string, cause error) id.RenderBundleID {
	return assignError(hubOf[A](g).renderBundles, idIn, label, cause)
}

func renderBundleLabel[A API](g *Global, bundle id.RenderBundleID) string {
	return labelOf[A](hubOf[A](g).renderBundles, bundle)
}

func renderBundleDrop[A API](g *Global, bundle id.RenderBundleID) {
	if b, ok := unregister[A](hubOf[A](g).renderBundles, bundle); ok {
		b.device.raw.DestroyRenderBundle(b.raw)
	}
}
