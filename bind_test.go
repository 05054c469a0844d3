package wgcore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/hub"
	"github.com/gogpu/wgcore/id"
)

func uniformEntry(binding uint32, vis gputypes.ShaderStages) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: vis,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func TestBindGroupLayoutDiagnosticPaths(t *testing.T) {
	td := newTestDevice(t)
	storageRW := gputypes.BindGroupLayoutEntry{
		Binding:    2,
		Visibility: gputypes.ShaderStageVertex,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
	}
	tests := []struct {
		name    string
		entries []gputypes.BindGroupLayoutEntry
		paths   []string
		want    error
	}{
		{
			name: "bad visibility bits",
			entries: []gputypes.BindGroupLayoutEntry{
				uniformEntry(0, gputypes.ShaderStageVertex),
				uniformEntry(1, gputypes.ShaderStages(1<<6)),
			},
			paths: []string{"entries[1].visibility"},
			want:  ErrVisibility,
		},
		{
			name:    "writable storage in vertex stage",
			entries: []gputypes.BindGroupLayoutEntry{uniformEntry(0, gputypes.ShaderStageFragment), storageRW},
			paths:   []string{"entries[1].visibility"},
			want:    ErrVisibility,
		},
		{
			name: "duplicate binding",
			entries: []gputypes.BindGroupLayoutEntry{
				uniformEntry(3, gputypes.ShaderStageVertex),
				uniformEntry(3, gputypes.ShaderStageFragment),
			},
			paths: []string{"entries[1]"},
			want:  ErrDuplicateBinding,
		},
		{
			name: "no binding type",
			entries: []gputypes.BindGroupLayoutEntry{
				{Binding: 0, Visibility: gputypes.ShaderStageCompute},
			},
			paths: []string{"entries[0]"},
			want:  ErrBindingType,
		},
		{
			name: "every failure captured",
			entries: []gputypes.BindGroupLayoutEntry{
				{Binding: 0, Visibility: gputypes.ShaderStageCompute},
				uniformEntry(1, gputypes.ShaderStages(1<<7)),
			},
			paths: []string{"entries[0]", "entries[1].visibility"},
			want:  ErrBindingType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := td.t.DeviceCreateBindGroupLayout(td.g, td.device, &BindGroupLayoutDescriptor{Label: tt.name, Entries: tt.entries}, 0)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error %v does not match %v", err, tt.want)
			}
			if len(verr.Records) != len(tt.paths) {
				t.Fatalf("records = %v, want %d", verr.Records, len(tt.paths))
			}
			for i, p := range tt.paths {
				if got := verr.Records[i].Trace.String(); got != p {
					t.Errorf("records[%d] path = %q, want %q", i, got, p)
				}
			}
			if _, err := td.t.DeviceCreatePipelineLayout(td.g, td.device, &PipelineLayoutDescriptor{
				BindGroupLayouts: []id.BindGroupLayoutID{l},
			}, 0); !errors.Is(err, tt.want) {
				t.Errorf("pipeline layout over the invalid layout: %v", err)
			}
		})
	}
}

func TestPipelineLayoutDiagnosticPaths(t *testing.T) {
	td := newTestDevice(t)
	good, err := td.t.DeviceCreateBindGroupLayout(td.g, td.device, &BindGroupLayoutDescriptor{
		Entries: []gputypes.BindGroupLayoutEntry{uniformEntry(0, gputypes.ShaderStageVertex)},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	broken := assignError(hubOf[Empty](td.g).bindGroupLayouts, id.BindGroupLayoutID(0), "broken", ErrBindingType)

	_, err = td.t.DeviceCreatePipelineLayout(td.g, td.device, &PipelineLayoutDescriptor{
		Label:            "layout",
		BindGroupLayouts: []id.BindGroupLayoutID{good, broken},
		PushConstantRanges: []hal.PushConstantRange{
			{Stages: gputypes.ShaderStageVertex, Range: hal.Range{Start: 0, End: 16}},
		},
	}, 0)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	// The no-op adapter has no push constant feature and a zero size limit.
	want := []string{"bindGroupLayouts[1]", "pushConstantRanges", "pushConstantRanges[0]"}
	if len(verr.Records) != len(want) {
		t.Fatalf("records = %v", verr.Records)
	}
	for i, p := range want {
		if got := verr.Records[i].Trace.String(); got != p {
			t.Errorf("records[%d] path = %q, want %q", i, got, p)
		}
	}
	var missing *MissingFeaturesError
	if !errors.As(err, &missing) {
		t.Errorf("error %v does not carry MissingFeaturesError", err)
	}
	if !errors.Is(err, hub.ErrInvalidResource) {
		t.Errorf("error %v does not report the invalid layout", err)
	}
}

func TestCreateBindGroup(t *testing.T) {
	td := newTestDevice(t)
	layout, err := td.t.DeviceCreateBindGroupLayout(td.g, td.device, &BindGroupLayoutDescriptor{
		Entries: []gputypes.BindGroupLayoutEntry{uniformEntry(0, gputypes.ShaderStageVertex)},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	uniform := td.buffer(t, 256, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	vertex := td.buffer(t, 256, gputypes.BufferUsageVertex)

	tests := []struct {
		name    string
		entries []BindGroupEntry
		want    error
	}{
		{"ok", []BindGroupEntry{{Binding: 0, Buffer: &BufferBinding{Buffer: uniform}}}, nil},
		{"missing entry", nil, ErrBindingMismatch},
		{"wrong binding", []BindGroupEntry{{Binding: 1, Buffer: &BufferBinding{Buffer: uniform}}}, ErrBindingMismatch},
		{"missing usage", []BindGroupEntry{{Binding: 0, Buffer: &BufferBinding{Buffer: vertex}}}, ErrMissingUsage},
		{"unaligned offset", []BindGroupEntry{{Binding: 0, Buffer: &BufferBinding{Buffer: uniform, Offset: 4, Size: 16}}}, ErrUnaligned},
		{"past end", []BindGroupEntry{{Binding: 0, Buffer: &BufferBinding{Buffer: uniform, Size: 512}}}, ErrOutOfBounds},
		{"no resource", []BindGroupEntry{{Binding: 0}}, ErrBindingType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := td.t.DeviceCreateBindGroup(td.g, td.device, &BindGroupDescriptor{Label: tt.name, Layout: layout, Entries: tt.entries}, 0)
			if tt.want == nil {
				if err != nil {
					t.Fatal(err)
				}
				td.t.BindGroupDrop(td.g, g)
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if got := td.t.BindGroupLabel(td.g, g); got != tt.name {
				t.Errorf("label of the error record = %q", got)
			}
		})
	}
}
