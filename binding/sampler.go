package binding

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/id"
)

// CreateSamplerArgs is the JSON argument of CreateSampler. Enum fields use
// the host's names, e.g. "clamp-to-edge" or "less-equal".
type CreateSamplerArgs struct {
	DeviceRid     Rid     `json:"deviceRid"`
	Label         string  `json:"label"`
	AddressModeU  string  `json:"addressModeU"`
	AddressModeV  string  `json:"addressModeV"`
	AddressModeW  string  `json:"addressModeW"`
	MagFilter     string  `json:"magFilter"`
	MinFilter     string  `json:"minFilter"`
	MipmapFilter  string  `json:"mipmapFilter"`
	LodMinClamp   float32 `json:"lodMinClamp"`
	LodMaxClamp   float32 `json:"lodMaxClamp"`
	Compare       string  `json:"compare,omitempty"`
	MaxAnisotropy uint16  `json:"maxAnisotropy"`
}

func (a *CreateSamplerArgs) descriptor() (*wgcore.SamplerDescriptor, error) {
	d := &wgcore.SamplerDescriptor{
		Label:       a.Label,
		LodMinClamp: a.LodMinClamp,
		LodMaxClamp: a.LodMaxClamp,
		Anisotropy:  a.MaxAnisotropy,
	}
	var err error
	if d.AddressModeU, err = parseAddressMode(a.AddressModeU); err != nil {
		return nil, err
	}
	if d.AddressModeV, err = parseAddressMode(a.AddressModeV); err != nil {
		return nil, err
	}
	if d.AddressModeW, err = parseAddressMode(a.AddressModeW); err != nil {
		return nil, err
	}
	if d.MagFilter, err = parseFilterMode(a.MagFilter); err != nil {
		return nil, err
	}
	if d.MinFilter, err = parseFilterMode(a.MinFilter); err != nil {
		return nil, err
	}
	if d.MipmapFilter, err = parseFilterMode(a.MipmapFilter); err != nil {
		return nil, err
	}
	if d.Compare, err = parseCompare(a.Compare); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateSampler decodes args as CreateSamplerArgs and creates the sampler.
func (in *Instance) CreateSampler(args []byte) (Result, error) {
	var a CreateSamplerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return Result{}, fmt.Errorf("%w: sampler: %w", ErrInvalidArgument, err)
	}
	desc, err := a.descriptor()
	if err != nil {
		return Result{}, err
	}
	d, err := in.get(a.DeviceRid, KindDevice)
	if err != nil {
		return Result{}, err
	}
	g, tbl := in.global, d.table
	sampler, err := tbl.DeviceCreateSampler(g, id.FromRaw[id.Device](d.raw), desc, 0)
	rid := in.add(&resource{
		kind:  KindSampler,
		table: tbl,
		raw:   sampler.Raw(),
		close: func() { tbl.SamplerDrop(g, sampler) },
	})
	return ridResult(rid, err), nil
}
