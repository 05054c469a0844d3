package diag

// Kind identifies the validation domain a Diagnostic belongs to.
type Kind uint8

const (
	// KindDevice covers failures of the device itself (lost, destroyed,
	// out of memory) seen while validating.
	KindDevice Kind = iota
	KindCreateBindGroupLayout
	KindCreatePipelineLayout
	KindCreateRenderPipeline
	KindCreateComputePipeline
	// KindImplicitLayout covers failures deriving a pipeline layout from
	// shader reflection.
	KindImplicitLayout
	KindMissingFeatures
	KindMissingDownlevelFlags
	// KindStage covers a shader stage that does not match its module, such
	// as a missing entry point.
	KindStage
)

var kindNames = [...]string{
	KindDevice:                "device error",
	KindCreateBindGroupLayout: "bind group layout creation failed",
	KindCreatePipelineLayout:  "pipeline layout creation failed",
	KindCreateRenderPipeline:  "render pipeline creation failed",
	KindCreateComputePipeline: "compute pipeline creation failed",
	KindImplicitLayout:        "implicit layout resolution failed",
	KindMissingFeatures:       "missing features",
	KindMissingDownlevelFlags: "missing downlevel flags",
	KindStage:                 "shader stage validation failed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown diagnostic"
}

// Diagnostic is one captured validation failure. It wraps the lower-level
// error that caused it.
type Diagnostic struct {
	Kind  Kind
	Cause error
}

func (d Diagnostic) Error() string {
	if d.Cause == nil {
		return d.Kind.String()
	}
	return d.Kind.String() + ": " + d.Cause.Error()
}

func (d Diagnostic) Unwrap() error { return d.Cause }

// Constructors, one per Kind.

func Device(cause error) Diagnostic { return Diagnostic{KindDevice, cause} }

func CreateBindGroupLayout(cause error) Diagnostic {
	return Diagnostic{KindCreateBindGroupLayout, cause}
}

func CreatePipelineLayout(cause error) Diagnostic {
	return Diagnostic{KindCreatePipelineLayout, cause}
}

func CreateRenderPipeline(cause error) Diagnostic {
	return Diagnostic{KindCreateRenderPipeline, cause}
}

func CreateComputePipeline(cause error) Diagnostic {
	return Diagnostic{KindCreateComputePipeline, cause}
}

func ImplicitLayout(cause error) Diagnostic { return Diagnostic{KindImplicitLayout, cause} }

func MissingFeatures(cause error) Diagnostic { return Diagnostic{KindMissingFeatures, cause} }

func MissingDownlevelFlags(cause error) Diagnostic {
	return Diagnostic{KindMissingDownlevelFlags, cause}
}

func Stage(cause error) Diagnostic { return Diagnostic{KindStage, cause} }
