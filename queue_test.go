package wgcore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/hub"
	"github.com/gogpu/wgcore/id"
)

func TestStagingBuffer(t *testing.T) {
	td := newTestDevice(t)
	b := td.buffer(t, 16, gputypes.BufferUsageCopyDst|gputypes.BufferUsageMapRead)

	s, data, err := td.t.QueueCreateStagingBuffer(td.g, td.queue, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	copy(data, []byte{9, 8, 7, 6})
	if err := td.t.QueueWriteStagingBuffer(td.g, td.queue, b, 4, s); err != nil {
		t.Fatal(err)
	}
	if err := td.t.QueueWriteStagingBuffer(td.g, td.queue, b, 4, s); !errors.Is(err, hub.ErrInvalidResource) {
		t.Errorf("second write of a staging buffer: %v, want ErrInvalidResource", err)
	}

	if err := td.t.BufferMapAsync(td.g, b, 0, 0, MapModeRead, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := td.t.DevicePoll(td.g, td.device, true); err != nil {
		t.Fatal(err)
	}
	got, err := td.t.BufferGetMappedRange(td.g, b, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got[4:8], []byte{9, 8, 7, 6}) {
		t.Errorf("buffer = %v", got)
	}

	_, _, err = td.t.QueueCreateStagingBuffer(td.g, td.queue, 1<<62, 0)
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("oversized staging buffer: %v, want ErrInvalidSize", err)
	}
}

func TestQueueValidateWriteBuffer(t *testing.T) {
	td := newTestDevice(t)
	b := td.buffer(t, 16, gputypes.BufferUsageCopyDst)
	noCopy := td.buffer(t, 16, gputypes.BufferUsageUniform)

	tests := []struct {
		name   string
		buffer id.BufferID
		offset uint64
		size   uint64
		want   error
	}{
		{"ok", b, 4, 8, nil},
		{"whole", b, 0, 16, nil},
		{"unaligned", b, 2, 4, ErrUnaligned},
		{"past end", b, 8, 12, ErrOutOfBounds},
		{"no copy dst", noCopy, 0, 4, ErrMissingUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := td.t.QueueValidateWriteBuffer(td.g, td.queue, tt.buffer, tt.offset, tt.size)
			if tt.want == nil {
				if err != nil {
					t.Errorf("QueueValidateWriteBuffer() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("QueueValidateWriteBuffer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTextureUploadAndCopies(t *testing.T) {
	td := newTestDevice(t)
	tex, err := td.t.DeviceCreateTexture(td.g, td.device, &TextureDescriptor{
		Label:     "upload",
		Size:      Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Dimension: gputypes.TextureDimension2D,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	size := Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1}
	layout := ImageDataLayout{BytesPerRow: 256, RowsPerImage: 4}

	pixels := make([]byte, 1024)
	if err := td.t.QueueWriteTexture(td.g, td.queue, &ImageCopyTexture{Texture: tex}, pixels, &layout, &size); err != nil {
		t.Fatalf("QueueWriteTexture() error = %v", err)
	}
	tooBig := Extent3D{Width: 8, Height: 4, DepthOrArrayLayers: 1}
	if err := td.t.QueueWriteTexture(td.g, td.queue, &ImageCopyTexture{Texture: tex}, pixels, &layout, &tooBig); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("write past the texture: %v, want ErrOutOfBounds", err)
	}

	src := td.buffer(t, 1024, gputypes.BufferUsageCopySrc)
	dst := td.buffer(t, 1024, gputypes.BufferUsageCopyDst)
	enc := td.encoder(t)
	err = td.t.CommandEncoderCopyBufferToTexture(td.g, enc, &ImageCopyBuffer{Buffer: src, Layout: layout}, &ImageCopyTexture{Texture: tex}, &size)
	if err != nil {
		t.Fatalf("CopyBufferToTexture() error = %v", err)
	}
	err = td.t.CommandEncoderCopyTextureToBuffer(td.g, enc, &ImageCopyTexture{Texture: tex}, &ImageCopyBuffer{Buffer: dst, Layout: layout}, &size)
	if err != nil {
		t.Fatalf("CopyTextureToBuffer() error = %v", err)
	}
	cb, err := td.t.CommandEncoderFinish(td.g, enc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := td.t.QueueSubmit(td.g, td.queue, []id.CommandBufferID{cb}); err != nil {
		t.Fatal(err)
	}

	enc = td.encoder(t)
	bad := ImageDataLayout{BytesPerRow: 16}
	err = td.t.CommandEncoderCopyBufferToTexture(td.g, enc, &ImageCopyBuffer{Buffer: src, Layout: bad}, &ImageCopyTexture{Texture: tex}, &size)
	if !errors.Is(err, ErrUnaligned) {
		t.Errorf("unaligned bytes per row: %v, want ErrUnaligned", err)
	}
}

func TestComputePassWithoutPipeline(t *testing.T) {
	td := newTestDevice(t)
	enc := td.encoder(t)
	var pass ComputePass
	pass.Dispatch(1, 1, 1)
	err := td.t.CommandEncoderRunComputePass(td.g, enc, &ComputePassDescriptor{Label: "compute"}, &pass)
	if !errors.Is(err, ErrEncoderState) {
		t.Errorf("dispatch without a pipeline: %v, want ErrEncoderState", err)
	}

	enc = td.encoder(t)
	if err := td.t.CommandEncoderRunComputePass(td.g, enc, &ComputePassDescriptor{}, &ComputePass{}); err != nil {
		t.Errorf("empty compute pass: %v", err)
	}
}
