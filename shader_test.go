package wgcore

import (
	"errors"
	"testing"

	"github.com/gogpu/wgcore/hub"
	"github.com/gogpu/wgcore/id"
)

const doubleWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    data[gid.x] = data[gid.x] * 2u;
}
`

func (td *testDevice) shader(t *testing.T, label, code string) id.ShaderModuleID {
	t.Helper()
	m, err := td.t.DeviceCreateShaderModule(td.g, td.device, &ShaderModuleDescriptor{Label: label, Code: code}, 0)
	if err != nil {
		t.Fatalf("DeviceCreateShaderModule(%s): %v", label, err)
	}
	return m
}

func TestShaderModuleCache(t *testing.T) {
	td := newTestDevice(t)
	a := td.shader(t, "a", doubleWGSL)
	b := td.shader(t, "b", doubleWGSL)
	if a == b {
		t.Fatal("two modules share one identifier")
	}

	s := td.g.GenerateReport().ShaderCache
	if s.Misses != 1 || s.Hits != 1 || s.Len != 1 {
		t.Errorf("ShaderCache = %+v, want 1 miss, 1 hit, 1 entry", s)
	}
	if td.t.ShaderModuleLabel(td.g, b) != "b" {
		t.Errorf("label = %q", td.t.ShaderModuleLabel(td.g, b))
	}

	td.t.ShaderModuleDrop(td.g, a)
	if td.g.GenerateReport().ShaderCache.Len != 1 {
		t.Error("dropping a module evicted the compiled source")
	}
}

func TestShaderModuleInvalid(t *testing.T) {
	td := newTestDevice(t)
	for range 2 {
		m, err := td.t.DeviceCreateShaderModule(td.g, td.device, &ShaderModuleDescriptor{Label: "bad", Code: "fn main( {"}, 0)
		if !errors.Is(err, ErrInvalidShader) {
			t.Fatalf("err = %v, want ErrInvalidShader", err)
		}
		if m.IsZero() {
			t.Fatal("no error record was assigned")
		}
		if got := td.t.ShaderModuleLabel(td.g, m); got != "bad" {
			t.Errorf("error record label = %q", got)
		}
	}
	if s := td.g.GenerateReport().ShaderCache; s.Hits != 1 {
		t.Errorf("failed compile was not cached: %+v", s)
	}
}

func TestShaderModuleSPIRVMagic(t *testing.T) {
	td := newTestDevice(t)
	_, err := td.t.DeviceCreateShaderModuleSPIRV(td.g, td.device, &ShaderModuleSPIRVDescriptor{Label: "spv", Code: []uint32{0xdeadbeef}}, 0)
	if !errors.Is(err, ErrInvalidShader) {
		t.Errorf("bad magic: %v, want ErrInvalidShader", err)
	}
	if _, err := td.t.DeviceCreateShaderModuleSPIRV(td.g, td.device, &ShaderModuleSPIRVDescriptor{Label: "spv", Code: []uint32{spirvMagic, 0x00010000}}, 0); err != nil {
		t.Errorf("valid header: %v", err)
	}
}

func TestComputePipelineNeedsDownlevel(t *testing.T) {
	td := newTestDevice(t)
	m := td.shader(t, "double", doubleWGSL)

	p, err := td.t.DeviceCreateComputePipeline(td.g, td.device, &ComputePipelineDescriptor{
		Label:   "double",
		Compute: ProgrammableStage{Module: m},
	}, 0)
	var missing *MissingDownlevelFlagsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingDownlevelFlagsError", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Label != "double" {
		t.Errorf("err = %v, want a ValidationError for %q", err, "double")
	}

	var invalid *hub.InvalidResourceError
	if _, err := td.t.ComputePipelineGetBindGroupLayout(td.g, p, 0); !errors.As(err, &invalid) {
		t.Errorf("GetBindGroupLayout on a failed pipeline = %v", err)
	}
}
