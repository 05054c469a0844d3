package binding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// ErrInvalidArgument reports an op argument the host should have rejected.
var ErrInvalidArgument = errors.New("binding: invalid argument")

type enum interface {
	~uint32
	String() string
}

// parseEnum maps a host enum string such as "clamp-to-edge" or
// "bgra8unorm-srgb" onto the gputypes value whose name matches it, ignoring
// case and dashes. The empty string maps to the zero value.
func parseEnum[E enum](s string, last E) (E, error) {
	if s == "" {
		return 0, nil
	}
	want := normalize(s)
	for v := E(1); v <= last; v++ {
		if normalize(v.String()) == want {
			return v, nil
		}
	}
	var zero E
	return zero, fmt.Errorf("%w: %q is not a valid %T", ErrInvalidArgument, s, zero)
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}

func parseAddressMode(s string) (gputypes.AddressMode, error) {
	return parseEnum(s, gputypes.AddressModeMirrorRepeat)
}

func parseFilterMode(s string) (gputypes.FilterMode, error) {
	return parseEnum(s, gputypes.FilterModeLinear)
}

func parseCompare(s string) (gputypes.CompareFunction, error) {
	return parseEnum(s, gputypes.CompareFunctionAlways)
}

func parseBufferBindingType(s string) (gputypes.BufferBindingType, error) {
	return parseEnum(s, gputypes.BufferBindingTypeReadOnlyStorage)
}

func parseSamplerBindingType(s string) (gputypes.SamplerBindingType, error) {
	return parseEnum(s, gputypes.SamplerBindingTypeComparison)
}

func parseSampleType(s string) (gputypes.TextureSampleType, error) {
	return parseEnum(s, gputypes.TextureSampleTypeUint)
}

func parseViewDimension(s string) (gputypes.TextureViewDimension, error) {
	return parseEnum(s, gputypes.TextureViewDimension3D)
}

func parseStorageAccess(s string) (gputypes.StorageTextureAccess, error) {
	return parseEnum(s, gputypes.StorageTextureAccessReadWrite)
}

func parseTextureFormat(s string) (gputypes.TextureFormat, error) {
	return parseEnum(s, gputypes.TextureFormatASTC12x12UnormSrgb)
}
