package wgcore

import (
	"fmt"

	"github.com/gogpu/wgcore/hub"
	"github.com/gogpu/wgcore/id"
)

func hubOf[A API](g *Global) *Hub {
	var a A
	h, ok := g.hubs[a.Variant()]
	if !ok {
		panic(fmt.Sprintf("wgcore: backend %v is not compiled in", a.Variant()))
	}
	return h
}

func checkBackend[A API](raw id.RawID, kind id.Kind) {
	var a A
	if raw.Backend() != a.Variant() {
		panic(fmt.Sprintf("wgcore: %s%v used with the %v backend", kind, raw, a.Variant()))
	}
}

// resolve looks i up in reg after checking that it belongs to backend A.
func resolve[A API, T any, M id.Marker](reg *hub.Registry[T], i id.ID[M]) (T, error) {
	checkBackend[A](i.Raw(), i.Kind())
	return reg.Get(i.Raw())
}

func assign[T any, M id.Marker](reg *hub.Registry[T], idIn id.ID[M], label string, v T) id.ID[M] {
	return id.FromRaw[M](reg.Assign(idIn.Raw(), label, v))
}

func assignError[T any, M id.Marker](reg *hub.Registry[T], idIn id.ID[M], label string, cause error) id.ID[M] {
	return id.FromRaw[M](reg.AssignError(idIn.Raw(), label, cause))
}

func labelOf[A API, T any, M id.Marker](reg *hub.Registry[T], i id.ID[M]) string {
	checkBackend[A](i.Raw(), i.Kind())
	return reg.Label(i.Raw())
}

// unregister removes i from reg. The value is returned only if i named a
// live resource.
func unregister[A API, T any, M id.Marker](reg *hub.Registry[T], i id.ID[M]) (T, bool) {
	checkBackend[A](i.Raw(), i.Kind())
	if !reg.Contains(i.Raw()) {
		var zero T
		return zero, false
	}
	return reg.Unregister(i.Raw())
}
