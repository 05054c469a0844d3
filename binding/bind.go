package binding

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/id"
)

// CreateBindGroupLayoutArgs is the JSON argument of CreateBindGroupLayout.
type CreateBindGroupLayoutArgs struct {
	DeviceRid Rid                  `json:"deviceRid"`
	Label     string               `json:"label"`
	Entries   []BindGroupLayoutArg `json:"entries"`
}

// BindGroupLayoutArg is one layout entry. At most one of the binding type
// fields is set.
type BindGroupLayoutArg struct {
	Binding        uint32             `json:"binding"`
	Visibility     uint32             `json:"visibility"`
	Buffer         *BufferLayoutArg   `json:"buffer,omitempty"`
	Sampler        *SamplerLayoutArg  `json:"sampler,omitempty"`
	Texture        *TextureLayoutArg  `json:"texture,omitempty"`
	StorageTexture *StorageTextureArg `json:"storageTexture,omitempty"`
}

type BufferLayoutArg struct {
	Type             string `json:"type"`
	HasDynamicOffset bool   `json:"hasDynamicOffset"`
	MinBindingSize   uint64 `json:"minBindingSize"`
}

type SamplerLayoutArg struct {
	Type string `json:"type"`
}

type TextureLayoutArg struct {
	SampleType    string `json:"sampleType"`
	ViewDimension string `json:"viewDimension"`
	Multisampled  bool   `json:"multisampled"`
}

type StorageTextureArg struct {
	Access        string `json:"access"`
	Format        string `json:"format"`
	ViewDimension string `json:"viewDimension"`
}

func (a *BindGroupLayoutArg) entry() (gputypes.BindGroupLayoutEntry, error) {
	e := gputypes.BindGroupLayoutEntry{
		Binding:    a.Binding,
		Visibility: gputypes.ShaderStages(a.Visibility),
	}
	var err error
	switch {
	case a.Buffer != nil:
		e.Buffer = &gputypes.BufferBindingLayout{
			HasDynamicOffset: a.Buffer.HasDynamicOffset,
			MinBindingSize:   a.Buffer.MinBindingSize,
		}
		if e.Buffer.Type, err = parseBufferBindingType(a.Buffer.Type); err != nil {
			return e, err
		}
		if e.Buffer.Type == gputypes.BufferBindingTypeUndefined {
			e.Buffer.Type = gputypes.BufferBindingTypeUniform
		}
	case a.Sampler != nil:
		e.Sampler = &gputypes.SamplerBindingLayout{}
		if e.Sampler.Type, err = parseSamplerBindingType(a.Sampler.Type); err != nil {
			return e, err
		}
		if e.Sampler.Type == gputypes.SamplerBindingTypeUndefined {
			e.Sampler.Type = gputypes.SamplerBindingTypeFiltering
		}
	case a.Texture != nil:
		e.Texture = &gputypes.TextureBindingLayout{Multisampled: a.Texture.Multisampled}
		if e.Texture.SampleType, err = parseSampleType(a.Texture.SampleType); err != nil {
			return e, err
		}
		if e.Texture.ViewDimension, err = parseViewDimension(a.Texture.ViewDimension); err != nil {
			return e, err
		}
		if e.Texture.SampleType == gputypes.TextureSampleTypeUndefined {
			e.Texture.SampleType = gputypes.TextureSampleTypeFloat
		}
		if e.Texture.ViewDimension == gputypes.TextureViewDimensionUndefined {
			e.Texture.ViewDimension = gputypes.TextureViewDimension2D
		}
	case a.StorageTexture != nil:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{}
		if e.StorageTexture.Access, err = parseStorageAccess(a.StorageTexture.Access); err != nil {
			return e, err
		}
		if e.StorageTexture.Format, err = parseTextureFormat(a.StorageTexture.Format); err != nil {
			return e, err
		}
		if e.StorageTexture.ViewDimension, err = parseViewDimension(a.StorageTexture.ViewDimension); err != nil {
			return e, err
		}
		if e.StorageTexture.Access == gputypes.StorageTextureAccessUndefined {
			e.StorageTexture.Access = gputypes.StorageTextureAccessWriteOnly
		}
		if e.StorageTexture.ViewDimension == gputypes.TextureViewDimensionUndefined {
			e.StorageTexture.ViewDimension = gputypes.TextureViewDimension2D
		}
	}
	return e, nil
}

// CreateBindGroupLayout decodes args as CreateBindGroupLayoutArgs and
// creates the layout. Validation failures come back in the Result with one
// diagnostic per offending entry.
func (in *Instance) CreateBindGroupLayout(args []byte) (Result, error) {
	var a CreateBindGroupLayoutArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return Result{}, fmt.Errorf("%w: bind group layout: %w", ErrInvalidArgument, err)
	}
	entries := make([]gputypes.BindGroupLayoutEntry, len(a.Entries))
	for i := range a.Entries {
		e, err := a.Entries[i].entry()
		if err != nil {
			return Result{}, fmt.Errorf("entries[%d]: %w", i, err)
		}
		entries[i] = e
	}
	d, err := in.get(a.DeviceRid, KindDevice)
	if err != nil {
		return Result{}, err
	}
	g, tbl := in.global, d.table
	layout, err := tbl.DeviceCreateBindGroupLayout(g, id.FromRaw[id.Device](d.raw), &wgcore.BindGroupLayoutDescriptor{
		Label:   a.Label,
		Entries: entries,
	}, 0)
	rid := in.add(&resource{
		kind:  KindBindGroupLayout,
		table: tbl,
		raw:   layout.Raw(),
		close: func() { tbl.BindGroupLayoutDrop(g, layout) },
	})
	return ridResult(rid, err), nil
}
