package wgcore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/hub"
	"github.com/gogpu/wgcore/id"
)

func surfaceConfig(width, height uint32) *SurfaceConfiguration {
	return &SurfaceConfiguration{
		Width:       width,
		Height:      height,
		Format:      gputypes.TextureFormatBGRA8Unorm,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: gputypes.PresentModeFifo,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	}
}

func (td *testDevice) surface(t *testing.T) id.SurfaceID {
	t.Helper()
	s, err := td.g.InstanceCreateSurface(0, 0, 0)
	if err != nil {
		t.Fatalf("InstanceCreateSurface: %v", err)
	}
	return s
}

func TestSurfacePresentCycle(t *testing.T) {
	td := newTestDevice(t)
	s := td.surface(t)

	if _, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0); !errors.Is(err, ErrSurfaceNotConfigured) {
		t.Fatalf("acquire before configure: %v, want ErrSurfaceNotConfigured", err)
	}
	if err := td.t.SurfaceConfigure(td.g, s, td.device, surfaceConfig(64, 64)); err != nil {
		t.Fatal(err)
	}

	for frame := 0; frame < 2; frame++ {
		st, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0)
		if err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		if _, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0); !errors.Is(err, ErrInvalidUsage) {
			t.Errorf("second acquire: %v, want ErrInvalidUsage", err)
		}
		if err := td.t.SurfaceConfigure(td.g, s, td.device, surfaceConfig(32, 32)); !errors.Is(err, ErrInvalidUsage) {
			t.Errorf("configure while acquired: %v, want ErrInvalidUsage", err)
		}
		if _, err := td.t.TextureCreateView(td.g, st.Texture, nil, 0); err != nil {
			t.Errorf("view of the surface texture: %v", err)
		}
		if err := td.t.SurfacePresent(td.g, s); err != nil {
			t.Fatalf("frame %d present: %v", frame, err)
		}
		if _, err := td.t.TextureCreateView(td.g, st.Texture, nil, 0); !errors.Is(err, hub.ErrInvalidResource) {
			t.Errorf("view after present: %v, want ErrInvalidResource", err)
		}
	}
	if err := td.t.SurfacePresent(td.g, s); !errors.Is(err, ErrNoSurfaceTexture) {
		t.Errorf("present without a texture: %v, want ErrNoSurfaceTexture", err)
	}
	td.g.SurfaceDrop(s)
	if _, err := td.g.Surface(s); err == nil {
		t.Error("surface still registered after SurfaceDrop")
	}
}

func TestSurfaceTextureDiscard(t *testing.T) {
	td := newTestDevice(t)
	s := td.surface(t)
	if err := td.t.SurfaceConfigure(td.g, s, td.device, surfaceConfig(16, 16)); err != nil {
		t.Fatal(err)
	}
	if _, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0); err != nil {
		t.Fatal(err)
	}
	if err := td.t.SurfaceTextureDiscard(td.g, s); err != nil {
		t.Fatal(err)
	}
	if err := td.t.SurfaceTextureDiscard(td.g, s); !errors.Is(err, ErrNoSurfaceTexture) {
		t.Errorf("second discard: %v, want ErrNoSurfaceTexture", err)
	}
	if _, err := td.t.SurfaceGetCurrentTexture(td.g, s, 0); err != nil {
		t.Errorf("acquire after discard: %v", err)
	}
}

func TestSurfaceConfigureValidation(t *testing.T) {
	td := newTestDevice(t)
	s := td.surface(t)
	tests := []struct {
		name   string
		mutate func(c *SurfaceConfiguration)
		want   error
	}{
		{"zero size", func(c *SurfaceConfiguration) { c.Width = 0 }, ErrInvalidSize},
		{"over limit", func(c *SurfaceConfiguration) { c.Height = 1 << 20 }, ErrLimitsExceeded},
		{"no render attachment", func(c *SurfaceConfiguration) { c.Usage = gputypes.TextureUsageCopySrc }, ErrInvalidUsage},
		{"unsupported format", func(c *SurfaceConfiguration) { c.Format = gputypes.TextureFormatR8Unorm }, ErrFormat},
		{"auto alpha", func(c *SurfaceConfiguration) { c.AlphaMode = gputypes.CompositeAlphaModeAuto }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := surfaceConfig(64, 64)
			tt.mutate(c)
			err := td.t.SurfaceConfigure(td.g, s, td.device, c)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSurfaceCapabilities(t *testing.T) {
	td := newTestDevice(t)
	s := td.surface(t)
	adapter, err := td.g.RequestAdapter(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	caps, err := td.t.SurfaceGetCapabilities(td.g, s, adapter)
	if err != nil {
		t.Fatal(err)
	}
	if len(caps.Formats) == 0 || len(caps.PresentModes) == 0 {
		t.Errorf("capabilities = %+v", caps)
	}
}

func TestSurfaceDropInUsePanics(t *testing.T) {
	td := newTestDevice(t)
	s := td.surface(t)
	surf, err := td.g.Surface(s)
	if err != nil {
		t.Fatal(err)
	}
	surf.Retain()
	defer func() {
		if recover() == nil {
			t.Error("SurfaceDrop of a retained surface did not panic")
		}
		surf.Release()
		td.g.SurfaceDrop(s)
	}()
	td.g.SurfaceDrop(s)
}
