// Package wgcore is the backend dispatch and resource identity core of a
// WebGPU implementation built on the gogpu HAL.
//
// # Overview
//
// Resources are named by opaque 64-bit identifiers (package id). Each
// identifier carries the backend that created it, so a caller holding only
// an identifier can be routed to the right implementation without any
// further bookkeeping. Resources live in per-backend registries (package
// hub); the Global owns one registry set per compiled-in backend plus the
// surfaces, which are shared by every backend.
//
// WGSL sources are compiled once per Global. Shader modules created from
// the same source share one validated module (package cache).
//
// # Quick Start
//
//	g := wgcore.New("app")
//	defer g.Destroy()
//
//	adapter, err := g.RequestAdapter(&wgcore.RequestAdapterOptions{}, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	t := wgcore.FromBackend(adapter.Backend())
//	device, queue, err := t.AdapterRequestDevice(g, adapter, &wgcore.DeviceDescriptor{}, 0, 0)
//
// # Dispatch
//
// Operations are generic functions parameterized by a backend marker type
// (Empty, Vulkan, Metal, Dx12, Gles). Instantiating every operation for one
// marker yields a CoreTable. A caller that learns the backend at run time
// picks the table once with FromBackend or TableFor and then calls its
// entries; the entries themselves are statically dispatched.
//
// Code that needs a small backend-independent surface instead of the full
// table uses the capability objects returned by Global.Backend. DynDevice
// values obtained from them are converted back with DowncastDevice.
//
// # Errors
//
// Creation operations always return an identifier. When creation fails the
// identifier is bound to an error record, and every later use of it fails
// with a *hub.InvalidResourceError that unwraps to the original cause.
// Validation failures are *ValidationError values carrying the diagnostics
// collected by a diag.Context, each with the descriptor path it refers to,
// such as "entries[2].visibility".
//
// # Backends
//
// The no-op backend is always compiled in. Platform backends are opt-in
// build tags:
//
//	go build -tags vulkan
//	go build -tags metal   // darwin
//	go build -tags dx12    // windows
//	go build -tags gles    // linux, windows
//
// # Logging
//
// The package is silent by default. Use SetLogger to route its slog output
// to a handler of your choice.
package wgcore
