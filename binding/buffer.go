package binding

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/id"
)

// mapPollInterval is how often BufferMapAsync polls the device while a
// map is pending.
const mapPollInterval = 10 * time.Millisecond

// CreateBuffer creates a buffer on the device behind deviceRid. Usage bits
// the core does not know are rejected before the device is asked; the
// returned rid then names an identifier bound to that error.
func (in *Instance) CreateBuffer(deviceRid Rid, label string, size uint64, usage uint32, mappedAtCreation bool) (Result, error) {
	d, err := in.get(deviceRid, KindDevice)
	if err != nil {
		return Result{}, err
	}
	g, tbl := in.global, d.table
	var buffer id.BufferID
	u := gputypes.BufferUsage(usage)
	if u.ContainsUnknownBits() {
		err = fmt.Errorf("%w: usage %#x is not valid", wgcore.ErrInvalidUsage, usage)
		buffer = tbl.CreateBufferError(g, 0, label, err)
	} else {
		buffer, err = tbl.DeviceCreateBuffer(g, id.FromRaw[id.Device](d.raw), &wgcore.BufferDescriptor{
			Label:            label,
			Size:             size,
			Usage:            u,
			MappedAtCreation: mappedAtCreation,
		}, 0)
	}
	rid := in.add(&resource{
		kind:  KindBuffer,
		table: tbl,
		raw:   buffer.Raw(),
		close: func() { tbl.BufferDrop(g, buffer, true) },
	})
	return ridResult(rid, err), nil
}

// BufferMapAsync maps a range of the buffer and blocks, polling the device,
// until the map resolves or ctx is done. A map the core rejects up front
// is reported in the Result; a map that fails later is returned as an
// error.
func (in *Instance) BufferMapAsync(ctx context.Context, bufferRid, deviceRid Rid, mode wgcore.MapMode, offset, size uint64) (Result, error) {
	b, err := in.get(bufferRid, KindBuffer)
	if err != nil {
		return Result{}, err
	}
	d, err := in.get(deviceRid, KindDevice)
	if err != nil {
		return Result{}, err
	}
	g := in.global
	done := make(chan error, 1)
	err = b.table.BufferMapAsync(g, id.FromRaw[id.Buffer](b.raw), offset, size, mode, func(err error) {
		done <- err
	})
	if err != nil {
		return ridResult(0, err), nil
	}

	device := id.FromRaw[id.Device](d.raw)
	ticker := time.NewTicker(mapPollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.table.DevicePoll(g, device, true); err != nil {
			return Result{}, &OperationError{Op: "map async", Err: err}
		}
		select {
		case err := <-done:
			if err != nil {
				return Result{}, &OperationError{Op: "map async", Err: err}
			}
			return Result{}, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// BufferGetMappedRange copies the mapped range into dst and returns a rid
// for the range. A zero size means the rest of the mapping. The core's
// error is returned as an OperationError.
func (in *Instance) BufferGetMappedRange(bufferRid Rid, offset, size uint64, dst []byte) (Result, error) {
	b, err := in.get(bufferRid, KindBuffer)
	if err != nil {
		return Result{}, err
	}
	data, err := b.table.BufferGetMappedRange(in.global, id.FromRaw[id.Buffer](b.raw), offset, size)
	if err != nil {
		return Result{}, &OperationError{Op: "get mapped range", Err: err}
	}
	copy(dst, data)
	rid := in.add(&resource{kind: KindBufferMapped, mapped: data})
	return Result{Rid: rid}, nil
}

// BufferUnmap releases mappedRid, writes data back into the mapped range
// when it is non-nil, and unmaps the buffer.
func (in *Instance) BufferUnmap(bufferRid, mappedRid Rid, data []byte) (Result, error) {
	m, err := in.take(mappedRid, KindBufferMapped)
	if err != nil {
		return Result{}, err
	}
	b, err := in.get(bufferRid, KindBuffer)
	if err != nil {
		return Result{}, err
	}
	if data != nil {
		if len(data) != len(m.mapped) {
			return Result{}, fmt.Errorf("%w: %d bytes for a %d byte range", ErrInvalidArgument, len(data), len(m.mapped))
		}
		copy(m.mapped, data)
	}
	return ridResult(0, b.table.BufferUnmap(in.global, id.FromRaw[id.Buffer](b.raw))), nil
}

// QueueWriteBuffer writes data into the buffer at offset through the queue
// behind queueRid.
func (in *Instance) QueueWriteBuffer(queueRid, bufferRid Rid, offset uint64, data []byte) (Result, error) {
	q, err := in.get(queueRid, KindQueue)
	if err != nil {
		return Result{}, err
	}
	b, err := in.get(bufferRid, KindBuffer)
	if err != nil {
		return Result{}, err
	}
	err = q.table.QueueWriteBuffer(in.global, id.FromRaw[id.Queue](q.raw), id.FromRaw[id.Buffer](b.raw), offset, data)
	return ridResult(0, err), nil
}
