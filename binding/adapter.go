package binding

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/id"
)

// AdapterInfo describes the adapter returned by RequestAdapter.
type AdapterInfo struct {
	Rid      Rid               `json:"rid"`
	Name     string            `json:"name"`
	Backend  string            `json:"backend"`
	Features gputypes.Features `json:"features"`
	Limits   gputypes.Limits   `json:"limits"`
}

// RequestAdapter picks an adapter. A nil AdapterInfo with a nil error
// means no adapter matched.
func (in *Instance) RequestAdapter(opts *wgcore.RequestAdapterOptions) (*AdapterInfo, error) {
	adapter, err := in.global.RequestAdapter(opts, 0)
	if err != nil {
		wgcore.Logger().Debug("binding: no adapter", "err", err)
		return nil, nil
	}
	tbl, err := wgcore.TableFor(adapter.Raw())
	if err != nil {
		return nil, err
	}
	g := in.global
	info, err := tbl.AdapterGetInfo(g, adapter)
	if err != nil {
		return nil, err
	}
	features, err := tbl.AdapterFeatures(g, adapter)
	if err != nil {
		return nil, err
	}
	limits, err := tbl.AdapterLimits(g, adapter)
	if err != nil {
		return nil, err
	}
	rid := in.add(&resource{
		kind:  KindAdapter,
		table: tbl,
		raw:   adapter.Raw(),
		close: func() { tbl.AdapterDrop(g, adapter) },
	})
	return &AdapterInfo{
		Rid:      rid,
		Name:     info.Name,
		Backend:  adapter.Backend().String(),
		Features: features,
		Limits:   limits,
	}, nil
}

// DeviceResult carries the rids of a new device and its queue.
type DeviceResult struct {
	Rid      Rid        `json:"rid,omitempty"`
	QueueRid Rid        `json:"queueRid,omitempty"`
	Err      *ErrorInfo `json:"err,omitempty"`
}

// RequestDevice opens a device on the adapter behind adapterRid.
func (in *Instance) RequestDevice(adapterRid Rid, desc *wgcore.DeviceDescriptor) (DeviceResult, error) {
	a, err := in.get(adapterRid, KindAdapter)
	if err != nil {
		return DeviceResult{}, err
	}
	g, tbl := in.global, a.table
	device, queue, err := tbl.AdapterRequestDevice(g, id.FromRaw[id.Adapter](a.raw), desc, 0, 0)
	if err != nil {
		return DeviceResult{Err: errorInfo(err)}, nil
	}
	rid := in.add(&resource{
		kind:  KindDevice,
		table: tbl,
		raw:   device.Raw(),
		close: func() { tbl.DeviceDrop(g, device) },
	})
	qrid := in.add(&resource{
		kind:  KindQueue,
		table: tbl,
		raw:   queue.Raw(),
		close: func() { tbl.QueueDrop(g, queue) },
	})
	return DeviceResult{Rid: rid, QueueRid: qrid}, nil
}

// DevicePoll runs device maintenance and reports whether the device's
// queue is empty.
func (in *Instance) DevicePoll(deviceRid Rid, wait bool) (bool, error) {
	d, err := in.get(deviceRid, KindDevice)
	if err != nil {
		return false, err
	}
	return d.table.DevicePoll(in.global, id.FromRaw[id.Device](d.raw), wait)
}
