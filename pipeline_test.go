package wgcore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/hub"
)

const triangleWGSL = `
struct Params {
    color: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;

@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i) - 1.0;
    return vec4<f32>(x, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return params.color;
}
`

func renderPipelineDesc(m ProgrammableStage) *RenderPipelineDescriptor {
	frag := m
	frag.EntryPoint = "fs_main"
	return &RenderPipelineDescriptor{
		Label:  "triangle",
		Vertex: VertexState{ProgrammableStage: m},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
		},
		Fragment: &FragmentState{
			ProgrammableStage: frag,
			Targets: []gputypes.ColorTargetState{{
				Format:    gputypes.TextureFormatRGBA8Unorm,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	}
}

func TestRenderPipelineImplicitLayout(t *testing.T) {
	td := newTestDevice(t)
	m := td.shader(t, "triangle", triangleWGSL)

	p, err := td.t.DeviceCreateRenderPipeline(td.g, td.device, renderPipelineDesc(ProgrammableStage{Module: m, EntryPoint: "vs_main"}), 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := td.t.RenderPipelineLabel(td.g, p); got != "triangle" {
		t.Errorf("RenderPipelineLabel() = %q", got)
	}
	bgl, err := td.t.RenderPipelineGetBindGroupLayout(td.g, p, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bgl.IsZero() {
		t.Fatal("implicit bind group layout has no identifier")
	}
	if _, err := td.t.RenderPipelineGetBindGroupLayout(td.g, p, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("group 1: %v, want ErrOutOfBounds", err)
	}

	buf := td.buffer(t, 16, gputypes.BufferUsageUniform)
	group, err := td.t.DeviceCreateBindGroup(td.g, td.device, &BindGroupDescriptor{
		Layout:  bgl,
		Entries: []BindGroupEntry{{Binding: 0, Buffer: &BufferBinding{Buffer: buf}}},
	}, 0)
	if err != nil {
		t.Fatalf("bind group against the implicit layout: %v", err)
	}
	td.t.BindGroupDrop(td.g, group)

	// Implicit layouts go away with their pipeline.
	td.t.RenderPipelineDrop(td.g, p)
	var invalid *hub.InvalidResourceError
	if _, err := td.t.DeviceCreateBindGroup(td.g, td.device, &BindGroupDescriptor{Layout: bgl}, 0); !errors.As(err, &invalid) {
		t.Errorf("bind group after the pipeline was dropped: %v", err)
	}
}

func TestRenderPipelineDiagnostics(t *testing.T) {
	td := newTestDevice(t)
	m := td.shader(t, "triangle", triangleWGSL)

	desc := renderPipelineDesc(ProgrammableStage{Module: m, EntryPoint: "missing"})
	desc.Multisample.Count = 3
	p, err := td.t.DeviceCreateRenderPipeline(td.g, td.device, desc, 0)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	want := []string{"vertex.entryPoint", "multisample"}
	if len(verr.Records) != len(want) {
		t.Fatalf("records = %v, want %d", verr.Records, len(want))
	}
	for i, path := range want {
		if got := verr.Records[i].Trace.String(); got != path {
			t.Errorf("records[%d] path = %q, want %q", i, got, path)
		}
	}
	if !errors.Is(err, ErrEntryPointNotFound) || !errors.Is(err, ErrSampleCount) {
		t.Errorf("causes missing from %v", err)
	}

	if _, err := td.t.RenderPipelineGetBindGroupLayout(td.g, p, 0); !errors.Is(err, hub.ErrInvalidResource) {
		t.Errorf("GetBindGroupLayout on a failed pipeline = %v", err)
	}
}

func TestRenderPipelineStageMismatch(t *testing.T) {
	td := newTestDevice(t)
	m := td.shader(t, "triangle", triangleWGSL)

	desc := renderPipelineDesc(ProgrammableStage{Module: m, EntryPoint: "fs_main"})
	_, err := td.t.DeviceCreateRenderPipeline(td.g, td.device, desc, 0)
	if !errors.Is(err, ErrEntryPointNotFound) {
		t.Errorf("fragment entry point as vertex: %v, want ErrEntryPointNotFound", err)
	}
}
