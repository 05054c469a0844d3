package wgcore

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/diag"
	"github.com/gogpu/wgcore/id"
)

// Sentinel errors.
var (
	// ErrUnsupportedBackend is returned when a backend tag names a backend
	// that was not compiled into this build.
	ErrUnsupportedBackend = errors.New("wgcore: unsupported backend")

	// ErrNoAdapter is returned when no backend exposes a suitable adapter.
	ErrNoAdapter = errors.New("wgcore: no suitable adapter found")

	// ErrInvalidUsage is returned when a usage bitmask carries unassigned bits.
	ErrInvalidUsage = errors.New("wgcore: usage is not valid")

	// ErrMissingUsage is returned when a resource lacks the usage an
	// operation requires.
	ErrMissingUsage = errors.New("wgcore: resource is missing a required usage")

	// ErrDeviceLost is returned for operations on a lost device.
	ErrDeviceLost = errors.New("wgcore: device lost")

	// ErrDeviceDestroyed is returned for operations on a destroyed device.
	ErrDeviceDestroyed = errors.New("wgcore: device destroyed")

	// ErrDeviceMismatch is returned when resources from different devices
	// are combined.
	ErrDeviceMismatch = errors.New("wgcore: resource belongs to a different device")

	// ErrDestroyed is returned when a destroyed resource is used.
	ErrDestroyed = errors.New("wgcore: resource has been destroyed")

	// ErrUnaligned is returned for offsets or sizes that break an alignment rule.
	ErrUnaligned = errors.New("wgcore: offset or size is not aligned")

	// ErrOutOfBounds is returned for ranges past the end of a resource.
	ErrOutOfBounds = errors.New("wgcore: range is out of bounds")

	// ErrInvalidSize is returned for zero or over-limit sizes.
	ErrInvalidSize = errors.New("wgcore: invalid size")

	// ErrBufferNotMapped is returned when a mapped range is requested from
	// a buffer that is not mapped.
	ErrBufferNotMapped = errors.New("wgcore: buffer is not mapped")

	// ErrBufferAlreadyMapped is returned when mapping a buffer that is
	// mapped or has a pending map.
	ErrBufferAlreadyMapped = errors.New("wgcore: buffer is already mapped or pending")

	// ErrMapAborted is reported to map callbacks whose request was
	// cancelled by unmap, destroy or drop.
	ErrMapAborted = errors.New("wgcore: map request aborted")

	// ErrDuplicateBinding is returned when two layout entries share a binding.
	ErrDuplicateBinding = errors.New("wgcore: duplicate binding number")

	// ErrBindingType is returned when a layout entry does not set exactly
	// one binding type.
	ErrBindingType = errors.New("wgcore: entry must set exactly one binding type")

	// ErrVisibility is returned for an invalid shader stage mask.
	ErrVisibility = errors.New("wgcore: invalid visibility")

	// ErrTooManyBindings is returned when a limit on bindings is exceeded.
	ErrTooManyBindings = errors.New("wgcore: too many bindings")

	// ErrTooManyBindGroups is returned when a layout uses more groups than
	// the device allows.
	ErrTooManyBindGroups = errors.New("wgcore: too many bind groups")

	// ErrBindingMismatch is returned when a bind group entry does not fit
	// its layout.
	ErrBindingMismatch = errors.New("wgcore: binding does not match layout")

	// ErrEntryPointNotFound is returned when a pipeline stage names an
	// entry point the module does not define for that stage.
	ErrEntryPointNotFound = errors.New("wgcore: entry point not found")

	// ErrFormat is returned for a texture format that cannot be used the
	// way it was requested.
	ErrFormat = errors.New("wgcore: unsupported texture format")

	// ErrSampleCount is returned for an unsupported multisample count.
	ErrSampleCount = errors.New("wgcore: unsupported sample count")

	// ErrEncoderState is returned when a command encoder is used after it
	// was finished or invalidated.
	ErrEncoderState = errors.New("wgcore: command encoder is not recording")

	// ErrDebugGroup is returned for a pop without a matching push, or a
	// finish with groups still open.
	ErrDebugGroup = errors.New("wgcore: unbalanced debug groups")

	// ErrCommandBufferSubmitted is returned when a command buffer is
	// submitted twice.
	ErrCommandBufferSubmitted = errors.New("wgcore: command buffer already submitted")

	// ErrSurfaceNotConfigured is returned when acquiring from an
	// unconfigured surface.
	ErrSurfaceNotConfigured = errors.New("wgcore: surface is not configured")

	// ErrSurfaceUnsupported is returned when an adapter cannot present to
	// a surface.
	ErrSurfaceUnsupported = errors.New("wgcore: surface is not supported by the adapter")

	// ErrNoSurfaceTexture is returned by present and discard when no
	// texture has been acquired.
	ErrNoSurfaceTexture = errors.New("wgcore: no surface texture acquired")

	// ErrLimitsExceeded is returned when requested limits exceed the
	// adapter's.
	ErrLimitsExceeded = errors.New("wgcore: requested limits exceed adapter limits")

	// ErrInvalidShader is returned for shader sources that fail to parse or
	// validate.
	ErrInvalidShader = errors.New("wgcore: invalid shader module")
)

// errParentDropped is the cause recorded for resources of a dropped device.
var errParentDropped = fmt.Errorf("%w: parent device was dropped", ErrDeviceLost)

// MissingFeaturesError reports features an operation needs but the device
// was not created with.
type MissingFeaturesError struct {
	Missing gputypes.Features
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("wgcore: missing features %#x", uint64(e.Missing))
}

// MissingDownlevelFlagsError reports downlevel capabilities the adapter
// lacks.
type MissingDownlevelFlagsError struct {
	Missing hal.DownlevelFlags
}

func (e *MissingDownlevelFlagsError) Error() string {
	return fmt.Sprintf("wgcore: missing downlevel flags %#x", uint32(e.Missing))
}

// UsageError reports a resource used without the usage flag the operation
// requires.
type UsageError struct {
	Kind     id.Kind
	ID       id.RawID
	Actual   uint64
	Expected uint64
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("wgcore: %s%v usage %#x is missing %#x",
		e.Kind, e.ID, e.Actual, e.Expected&^e.Actual)
}

func (e *UsageError) Unwrap() error { return ErrMissingUsage }

// ValidationError is returned by creation functions whose descriptor failed
// validation. Records keeps the field path of every failure.
type ValidationError struct {
	Op      string
	Label   string
	Records diag.Errors
}

func (e *ValidationError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("wgcore: %s %q: %s", e.Op, e.Label, e.Records.Error())
	}
	return fmt.Sprintf("wgcore: %s: %s", e.Op, e.Records.Error())
}

func (e *ValidationError) Unwrap() error { return e.Records }
