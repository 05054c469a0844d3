package wgcore

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/hub"
)

func TestCreateBufferInvalidUsage(t *testing.T) {
	td := newTestDevice(t)
	tests := []struct {
		name  string
		usage gputypes.BufferUsage
	}{
		{"zero", 0},
		{"unknown bits", gputypes.BufferUsage(1 << 20)},
		{"map read with vertex", gputypes.BufferUsageMapRead | gputypes.BufferUsageVertex},
		{"map write with copy dst", gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopyDst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := td.t.DeviceCreateBuffer(td.g, td.device, &BufferDescriptor{Label: tt.name, Size: 16, Usage: tt.usage}, 0)
			if !errors.Is(err, ErrInvalidUsage) {
				t.Fatalf("DeviceCreateBuffer error = %v, want ErrInvalidUsage", err)
			}
			if b.IsZero() {
				t.Fatal("failed creation returned no identifier")
			}
			if got := td.t.BufferLabel(td.g, b); got != tt.name {
				t.Errorf("BufferLabel() = %q, want %q", got, tt.name)
			}
		})
	}
}

// An identifier bound to an error keeps reporting the original cause.
func TestContagiousInvalidity(t *testing.T) {
	td := newTestDevice(t)
	cause := errors.New("out of memory")
	b := td.t.CreateBufferError(td.g, 0, "doomed", cause)

	ops := map[string]func() error{
		"MapAsync": func() error {
			return td.t.BufferMapAsync(td.g, b, 0, 0, MapModeRead, nil)
		},
		"GetMappedRange": func() error {
			_, err := td.t.BufferGetMappedRange(td.g, b, 0, 0)
			return err
		},
		"Unmap":   func() error { return td.t.BufferUnmap(td.g, b) },
		"Destroy": func() error { return td.t.BufferDestroy(td.g, b) },
		"WriteBuffer": func() error {
			return td.t.QueueWriteBuffer(td.g, td.queue, b, 0, []byte{1, 2, 3, 4})
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			var invalid *hub.InvalidResourceError
			if !errors.As(err, &invalid) {
				t.Fatalf("error = %v, want *hub.InvalidResourceError", err)
			}
			if !errors.Is(err, cause) {
				t.Errorf("error %v does not unwrap to the cause", err)
			}
			if invalid.Label != "doomed" {
				t.Errorf("Label = %q", invalid.Label)
			}
		})
	}
}

func TestGetMappedRangeAfterInvalidUsage(t *testing.T) {
	td := newTestDevice(t)
	b, err := td.t.DeviceCreateBuffer(td.g, td.device, &BufferDescriptor{
		Size:  16,
		Usage: gputypes.BufferUsage(1 << 30),
	}, 0)
	if err == nil {
		t.Fatal("DeviceCreateBuffer accepted unknown usage bits")
	}
	_, err = td.t.BufferGetMappedRange(td.g, b, 0, 0)
	if !errors.Is(err, hub.ErrInvalidResource) || !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("BufferGetMappedRange error = %v, want ErrInvalidResource and ErrInvalidUsage", err)
	}
}

func TestBufferMapAsync(t *testing.T) {
	td := newTestDevice(t)
	b := td.buffer(t, 32, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)

	if err := td.t.QueueWriteBuffer(td.g, td.queue, b, 8, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	var mapped, called bool
	err := td.t.BufferMapAsync(td.g, b, 8, 0, MapModeRead, func(err error) {
		called = true
		mapped = err == nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := td.t.BufferGetMappedRange(td.g, b, 8, 0); !errors.Is(err, ErrBufferNotMapped) {
		t.Errorf("range of a pending map: %v, want ErrBufferNotMapped", err)
	}
	if err := td.t.BufferMapAsync(td.g, b, 0, 0, MapModeRead, nil); !errors.Is(err, ErrBufferAlreadyMapped) {
		t.Errorf("second MapAsync: %v, want ErrBufferAlreadyMapped", err)
	}
	if _, err := td.t.DevicePoll(td.g, td.device, false); err != nil {
		t.Fatal(err)
	}
	if !called || !mapped {
		t.Fatalf("callback called=%v mapped=%v", called, mapped)
	}

	data, err := td.t.BufferGetMappedRange(td.g, b, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 24 || !bytes.Equal(data[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("mapped range = %v", data)
	}
	if _, err := td.t.BufferGetMappedRange(td.g, b, 0, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("range before the mapping: %v, want ErrOutOfBounds", err)
	}
	if err := td.t.BufferUnmap(td.g, b); err != nil {
		t.Fatal(err)
	}
	if err := td.t.BufferUnmap(td.g, b); err != nil {
		t.Errorf("unmap of an unmapped buffer: %v", err)
	}
}

func TestBufferMapAsyncValidation(t *testing.T) {
	td := newTestDevice(t)
	b := td.buffer(t, 32, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	tests := []struct {
		name         string
		offset, size uint64
		mode         MapMode
		want         error
	}{
		{"write mode on read buffer", 0, 0, MapModeWrite, ErrMissingUsage},
		{"unaligned offset", 4, 0, MapModeRead, ErrUnaligned},
		{"unaligned size", 0, 6, MapModeRead, ErrUnaligned},
		{"past end", 16, 32, MapModeRead, ErrOutOfBounds},
		{"size wraps", 8, math.MaxUint64 - 7, MapModeRead, ErrOutOfBounds},
		{"bad mode", 0, 0, MapModeRead | MapModeWrite, ErrInvalidUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := td.t.BufferMapAsync(td.g, b, tt.offset, tt.size, tt.mode, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBufferMapAbortedByUnmap(t *testing.T) {
	td := newTestDevice(t)
	b := td.buffer(t, 16, gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc)
	var got error
	if err := td.t.BufferMapAsync(td.g, b, 0, 0, MapModeWrite, func(err error) { got = err }); err != nil {
		t.Fatal(err)
	}
	if err := td.t.BufferUnmap(td.g, b); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(got, ErrMapAborted) {
		t.Errorf("callback error = %v, want ErrMapAborted", got)
	}
}

func TestMappedAtCreationStaging(t *testing.T) {
	td := newTestDevice(t)
	b, err := td.t.DeviceCreateBuffer(td.g, td.device, &BufferDescriptor{
		Label:            "staged",
		Size:             8,
		Usage:            gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		MappedAtCreation: true,
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	data, err := td.t.BufferGetMappedRange(td.g, b, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	copy(data, []byte{9, 8, 7, 6, 5, 4, 3, 2})
	if err := td.t.BufferUnmap(td.g, b); err != nil {
		t.Fatal(err)
	}

	out := make([]byte, 8)
	if err := td.t.DeviceGetBufferSubData(td.g, td.device, b, 0, out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{9, 8, 7, 6, 5, 4, 3, 2}) {
		t.Errorf("contents = %v", out)
	}
}

func TestBufferDestroyThenUse(t *testing.T) {
	td := newTestDevice(t)
	b := td.buffer(t, 16, gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc)
	if err := td.t.BufferDestroy(td.g, b); err != nil {
		t.Fatal(err)
	}
	if err := td.t.BufferMapAsync(td.g, b, 0, 0, MapModeWrite, nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("MapAsync after destroy: %v, want ErrDestroyed", err)
	}
	td.t.BufferDrop(td.g, b, true)
	if err := td.t.BufferUnmap(td.g, b); !errors.Is(err, hub.ErrInvalidResource) {
		t.Errorf("Unmap after drop: %v, want ErrInvalidResource", err)
	}
}

func TestDeviceSetBufferSubData(t *testing.T) {
	td := newTestDevice(t)
	b := td.buffer(t, 8, gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc)
	if err := td.t.DeviceSetBufferSubData(td.g, td.device, b, 4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	var usage *UsageError
	err := td.t.DeviceGetBufferSubData(td.g, td.device, b, 0, make([]byte, 4))
	if !errors.As(err, &usage) || !errors.Is(err, ErrMissingUsage) {
		t.Errorf("read from a write-only buffer: %v, want *UsageError", err)
	}
}

func TestBufferRangeOverflow(t *testing.T) {
	td := newTestDevice(t)
	mapped, err := td.t.DeviceCreateBuffer(td.g, td.device, &BufferDescriptor{
		Size:             16,
		Usage:            gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
		MappedAtCreation: true,
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := td.t.BufferGetMappedRange(td.g, mapped, 8, math.MaxUint64-7); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("GetMappedRange with a wrapping size: %v, want ErrOutOfBounds", err)
	}
	if err := td.t.BufferUnmap(td.g, mapped); err != nil {
		t.Fatal(err)
	}

	w := td.buffer(t, 16, gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc)
	err = td.t.DeviceSetBufferSubData(td.g, td.device, w, math.MaxUint64-3, []byte{1, 2, 3, 4})
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("SetBufferSubData at a wrapping offset: %v, want ErrOutOfBounds", err)
	}
	r := td.buffer(t, 16, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	err = td.t.DeviceGetBufferSubData(td.g, td.device, r, math.MaxUint64-3, make([]byte, 4))
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("GetBufferSubData at a wrapping offset: %v, want ErrOutOfBounds", err)
	}
}
