// Package id defines the opaque, backend-tagged identifiers that name GPU
// resources.
//
// An identifier packs three fields into 64 bits:
//
//	| backend (3) | epoch (29) | index (32) |
//
// The index selects a storage slot, the epoch distinguishes successive
// occupants of the same slot, and the backend tag routes the identifier to
// the implementation that created it. The zero value is never handed out
// and acts as "no identifier" wherever an optional ID is accepted.
package id

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

const (
	indexBits   = 32
	epochBits   = 29
	backendBits = 3

	epochMask   = (1 << epochBits) - 1
	backendMask = (1 << backendBits) - 1
)

// MaxEpoch is the largest epoch an identifier can carry.
const MaxEpoch = epochMask

// RawID is the untyped 64-bit form of an identifier.
type RawID uint64

// Zip packs index, epoch and backend into a RawID.
func Zip(index, epoch uint32, backend gputypes.Backend) RawID {
	return RawID(index) |
		RawID(epoch&epochMask)<<indexBits |
		RawID(backend&backendMask)<<(indexBits+epochBits)
}

// Unzip splits a RawID into its fields.
func (r RawID) Unzip() (index, epoch uint32, backend gputypes.Backend) {
	index = uint32(r)
	epoch = uint32(r>>indexBits) & epochMask
	backend = gputypes.Backend((r >> (indexBits + epochBits)) & backendMask)
	return index, epoch, backend
}

// Index returns the storage slot index.
func (r RawID) Index() uint32 { return uint32(r) }

// Epoch returns the slot generation.
func (r RawID) Epoch() uint32 { return uint32(r>>indexBits) & epochMask }

// Backend returns the embedded backend tag.
func (r RawID) Backend() gputypes.Backend {
	return gputypes.Backend((r >> (indexBits + epochBits)) & backendMask)
}

// IsZero reports whether r is the "no identifier" value.
func (r RawID) IsZero() bool { return r == 0 }

func (r RawID) String() string {
	index, epoch, backend := r.Unzip()
	return fmt.Sprintf("(%d,%d,%s)", index, epoch, backend)
}

// ID is an identifier for a resource of the kind named by T.
//
// IDs of different kinds are distinct types, so a BufferID cannot be passed
// where a TextureID is expected. Conversion between kinds is only possible
// through Transmute.
type ID[T Marker] RawID

// FromRaw types a raw identifier.
func FromRaw[T Marker](r RawID) ID[T] { return ID[T](r) }

// Transmute reinterprets an identifier as another kind with the same bits.
// Command encoders and the command buffers they finish into share one slot.
func Transmute[U, T Marker](i ID[T]) ID[U] { return ID[U](i) }

// Raw returns the untyped identifier.
func (i ID[T]) Raw() RawID { return RawID(i) }

// Backend returns the embedded backend tag.
func (i ID[T]) Backend() gputypes.Backend { return RawID(i).Backend() }

// IsZero reports whether i is the "no identifier" value.
func (i ID[T]) IsZero() bool { return i == 0 }

// Kind returns the resource kind of i.
func (i ID[T]) Kind() Kind {
	var m T
	return m.Kind()
}

func (i ID[T]) String() string {
	return i.Kind().String() + RawID(i).String()
}
