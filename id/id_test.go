package id

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestZipUnzip(t *testing.T) {
	tests := []struct {
		name    string
		index   uint32
		epoch   uint32
		backend gputypes.Backend
	}{
		{"zero", 0, 0, gputypes.BackendEmpty},
		{"vulkan", 7, 1, gputypes.BackendVulkan},
		{"max index", ^uint32(0), 3, gputypes.BackendMetal},
		{"max epoch", 42, MaxEpoch, gputypes.BackendGL},
		{"browser", 1, 2, gputypes.BackendBrowserWebGPU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Zip(tt.index, tt.epoch, tt.backend)
			index, epoch, backend := raw.Unzip()
			if index != tt.index || epoch != tt.epoch || backend != tt.backend {
				t.Errorf("Unzip() = (%d, %d, %v), want (%d, %d, %v)",
					index, epoch, backend, tt.index, tt.epoch, tt.backend)
			}
			if raw.Backend() != tt.backend {
				t.Errorf("Backend() = %v, want %v", raw.Backend(), tt.backend)
			}
		})
	}
}

func TestZipTruncatesEpoch(t *testing.T) {
	raw := Zip(1, MaxEpoch+1, gputypes.BackendDX12)
	if raw.Epoch() != 0 {
		t.Errorf("Epoch() = %d, want 0 after overflow", raw.Epoch())
	}
	if raw.Backend() != gputypes.BackendDX12 {
		t.Errorf("Backend() = %v, want DX12; epoch overflow leaked into tag", raw.Backend())
	}
}

func TestTypedID(t *testing.T) {
	buf := FromRaw[Buffer](Zip(3, 1, gputypes.BackendVulkan))
	if buf.Kind() != KindBuffer {
		t.Errorf("Kind() = %v, want Buffer", buf.Kind())
	}
	if got, want := buf.String(), "Buffer(3,1,Vulkan)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if buf.IsZero() {
		t.Error("IsZero() = true for allocated id")
	}
	var none TextureID
	if !none.IsZero() {
		t.Error("IsZero() = false for zero id")
	}

	enc := FromRaw[CommandEncoder](Zip(5, 2, gputypes.BackendEmpty))
	cb := Transmute[CommandBuffer](enc)
	if cb.Raw() != enc.Raw() {
		t.Errorf("Transmute changed bits: %v != %v", cb.Raw(), enc.Raw())
	}
	if cb.Kind() != KindCommandBuffer {
		t.Errorf("Transmute kind = %v, want CommandBuffer", cb.Kind())
	}
}

func TestKindString(t *testing.T) {
	if KindComputePipeline.String() != "ComputePipeline" {
		t.Errorf("String() = %q", KindComputePipeline.String())
	}
	if Kind(200).String() != "Unknown" {
		t.Errorf("String() = %q, want Unknown", Kind(200).String())
	}
}
