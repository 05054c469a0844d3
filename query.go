package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

// maxQueryCount is the largest query set.
const maxQueryCount = 4096

func deviceCreateQuerySet[A API](g *Global, device id.DeviceID, desc *QuerySetDescriptor, idIn id.QuerySetID) (id.QuerySetID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.QuerySetID, error) {
		return assignError(h.querySets, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	if desc.Count == 0 || desc.Count > maxQueryCount {
		return fail(fmt.Errorf("%w: query count %d, limit %d", ErrInvalidSize, desc.Count, maxQueryCount))
	}
	if desc.Type == hal.QueryTypeTimestamp {
		if err := d.requireFeatures(gputypes.Features(gputypes.FeatureTimestampQuery)); err != nil {
			return fail(err)
		}
	}
	raw, err := d.raw.CreateQuerySet(desc)
	if err != nil {
		return fail(fmt.Errorf("wgcore: create query set: %w", err))
	}
	return assign(h.querySets, idIn, desc.Label, &QuerySet{device: d, raw: raw, desc: *desc}), nil
}

func querySetLabel[A API](g *Global, querySet id.QuerySetID) string {
	return labelOf[A](hubOf[A](g).querySets, querySet)
}

func querySetDrop[A API](g *Global, querySet id.QuerySetID) {
	if q, ok := unregister[A](hubOf[A](g).querySets, querySet); ok {
		q.device.raw.DestroyQuerySet(q.raw)
	}
}
