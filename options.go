package wgcore

import "github.com/gogpu/gputypes"

// GlobalOption configures a Global during creation.
//
// Example:
//
//	// All compiled-in backends, no debug layers
//	g := wgcore.New("app")
//
//	// Vulkan only, with validation
//	g := wgcore.New("app",
//	    wgcore.WithBackends(gputypes.BackendVulkan),
//	    wgcore.WithInstanceFlags(gputypes.InstanceFlagsValidation))
type GlobalOption func(*globalOptions)

type globalOptions struct {
	backends     []gputypes.Backend
	flags        gputypes.InstanceFlags
	dx12Compiler gputypes.Dx12ShaderCompiler
	glBackend    gputypes.GLBackend
}

func defaultGlobalOptions() globalOptions {
	return globalOptions{
		backends: CompiledBackends(),
	}
}

// WithBackends restricts the platform instance to the listed backends.
// Backends that are not compiled in are skipped with a warning.
func WithBackends(backends ...gputypes.Backend) GlobalOption {
	return func(o *globalOptions) {
		o.backends = backends
	}
}

// WithInstanceFlags sets debug and validation flags passed to every HAL
// instance.
func WithInstanceFlags(flags gputypes.InstanceFlags) GlobalOption {
	return func(o *globalOptions) {
		o.flags = flags
	}
}

// WithDx12ShaderCompiler selects the shader compiler used by the DX12 backend.
func WithDx12ShaderCompiler(c gputypes.Dx12ShaderCompiler) GlobalOption {
	return func(o *globalOptions) {
		o.dx12Compiler = c
	}
}

// WithGLBackend selects desktop GL or GLES for the GL backend.
func WithGLBackend(b gputypes.GLBackend) GlobalOption {
	return func(o *globalOptions) {
		o.glBackend = b
	}
}

// backendSet converts the option list to the HAL bitset form.
func (o *globalOptions) backendSet() gputypes.Backends {
	var set gputypes.Backends
	for _, b := range o.backends {
		set |= 1 << b
	}
	return set
}
