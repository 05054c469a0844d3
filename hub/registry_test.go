package hub

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/id"
)

var errBadUsage = errors.New("bad usage")

func TestRegistryAssignGet(t *testing.T) {
	r := NewRegistry[string](id.KindBuffer, gputypes.BackendVulkan)

	a := r.Assign(0, "a", "alpha")
	b := r.Assign(0, "b", "beta")
	if a == b {
		t.Fatalf("Assign() returned duplicate id %v", a)
	}
	if a.Backend() != gputypes.BackendVulkan {
		t.Errorf("Backend() = %v, want Vulkan", a.Backend())
	}
	if a.Epoch() != 1 {
		t.Errorf("Epoch() = %d, want 1", a.Epoch())
	}

	v, err := r.Get(b)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v != "beta" {
		t.Errorf("Get() = %q, want %q", v, "beta")
	}
	if got := r.Label(a); got != "a" {
		t.Errorf("Label() = %q, want %q", got, "a")
	}
}

func TestRegistryErrorRecordIsContagious(t *testing.T) {
	r := NewRegistry[int](id.KindBuffer, gputypes.BackendEmpty)
	raw := r.AssignError(0, "broken", errBadUsage)

	if !r.Contains(raw) {
		t.Fatal("Contains() = false for error record")
	}
	for i := 0; i < 3; i++ {
		_, err := r.Get(raw)
		if err == nil {
			t.Fatal("Get() on error record succeeded")
		}
		if !errors.Is(err, ErrInvalidResource) {
			t.Errorf("Get() error = %v, want ErrInvalidResource", err)
		}
		if !errors.Is(err, errBadUsage) {
			t.Errorf("Get() error = %v, want original cause in chain", err)
		}
		var ire *InvalidResourceError
		if !errors.As(err, &ire) || ire.Label != "broken" {
			t.Errorf("Get() error = %#v, want label %q", err, "broken")
		}
	}

	if _, ok := r.Unregister(raw); ok {
		t.Error("Unregister() returned a value for an error record")
	}
	_, err := r.Get(raw)
	if errors.Is(err, errBadUsage) {
		t.Error("cause survived Unregister")
	}
}

func TestRegistryReuseBumpsEpoch(t *testing.T) {
	r := NewRegistry[int](id.KindTexture, gputypes.BackendMetal)
	first := r.Assign(0, "", 1)
	r.Unregister(first)
	second := r.Assign(0, "", 2)

	if second.Index() != first.Index() {
		t.Fatalf("index not reused: %d vs %d", second.Index(), first.Index())
	}
	if second.Epoch() != first.Epoch()+1 {
		t.Errorf("Epoch() = %d, want %d", second.Epoch(), first.Epoch()+1)
	}

	defer func() {
		if recover() == nil {
			t.Error("Get() with stale epoch did not panic")
		}
	}()
	_, _ = r.Get(first)
}

func TestRegistryCallerChosenIDs(t *testing.T) {
	r := NewRegistry[int](id.KindSampler, gputypes.BackendEmpty)
	chosen := id.Zip(2, 5, gputypes.BackendEmpty)
	if got := r.Assign(chosen, "", 7); got != chosen {
		t.Fatalf("Assign() = %v, want %v", got, chosen)
	}

	seen := map[uint32]bool{2: true}
	for i := 0; i < 4; i++ {
		raw := r.Assign(0, "", i)
		if seen[raw.Index()] {
			t.Fatalf("Process() reused live index %d", raw.Index())
		}
		seen[raw.Index()] = true
	}
}

func TestRegistryForeignBackendPanics(t *testing.T) {
	r := NewRegistry[int](id.KindBuffer, gputypes.BackendVulkan)
	defer func() {
		if recover() == nil {
			t.Error("Assign() with foreign backend id did not panic")
		}
	}()
	r.Assign(id.Zip(0, 1, gputypes.BackendMetal), "", 1)
}

func TestRegistryDrainAndReport(t *testing.T) {
	r := NewRegistry[int](id.KindBuffer, gputypes.BackendEmpty)
	r.Assign(0, "", 10)
	r.Assign(0, "", 20)
	r.AssignError(0, "", errBadUsage)

	rep := r.GenerateReport()
	if rep.NumAllocated != 3 || rep.NumKeptFromUser != 2 || rep.NumError != 1 {
		t.Errorf("GenerateReport() = %+v", rep)
	}
	if rep.ElementSize == 0 {
		t.Error("ElementSize = 0")
	}

	values := r.Drain()
	if len(values) != 2 || values[0] != 10 || values[1] != 20 {
		t.Errorf("Drain() = %v, want [10 20]", values)
	}
	rep = r.GenerateReport()
	if !rep.IsEmpty() {
		t.Errorf("report after Drain = %+v, want empty", rep)
	}
	if rep.NumReleasedFromUser != 3 {
		t.Errorf("NumReleasedFromUser = %d, want 3", rep.NumReleasedFromUser)
	}
}

func TestRegistryRange(t *testing.T) {
	r := NewRegistry[string](id.KindDevice, gputypes.BackendGL)
	want := map[id.RawID]string{}
	for _, s := range []string{"x", "y", "z"} {
		want[r.Assign(0, "", s)] = s
	}
	r.AssignError(0, "", errBadUsage)

	got := map[id.RawID]string{}
	r.Range(func(raw id.RawID, v string) bool {
		got[raw] = v
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("Range() visited %d, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Range()[%v] = %q, want %q", k, got[k], v)
		}
	}
}

func TestRegistryDrainWithRecoveredPanic(t *testing.T) {
	r := NewRegistry[int](id.KindSurface, gputypes.BackendEmpty)
	r.Assign(0, "", 1)
	r.Assign(0, "", 2)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("DrainWith did not propagate the panic")
			}
		}()
		r.DrainWith(func(v int) {
			if v == 1 {
				panic("still in use")
			}
		})
	}()

	// Both calls need the registry lock.
	rep := r.GenerateReport()
	if rep.NumReleasedFromUser != 1 {
		t.Errorf("NumReleasedFromUser = %d, want 1", rep.NumReleasedFromUser)
	}
	if got := r.Assign(0, "", 3); got.IsZero() {
		t.Error("Assign after a recovered panic returned a zero id")
	}
}

func TestRegistryInvalidate(t *testing.T) {
	r := NewRegistry[int](id.KindBuffer, gputypes.BackendEmpty)
	var ids []id.RawID
	for v := range 4 {
		ids = append(ids, r.Assign(0, "v", v))
	}

	even := r.Invalidate(func(v int) bool { return v%2 == 0 }, errBadUsage)
	if len(even) != 2 || even[0] != 0 || even[1] != 2 {
		t.Errorf("Invalidate() = %v, want [0 2]", even)
	}
	_, err := r.Get(ids[2])
	var invalid *InvalidResourceError
	if !errors.As(err, &invalid) || !errors.Is(err, errBadUsage) || invalid.Label != "v" {
		t.Errorf("Get() of an invalidated value = %v", err)
	}
	if v, err := r.Get(ids[1]); err != nil || v != 1 {
		t.Errorf("Get() of a kept value = %v, %v", v, err)
	}
	if _, ok := r.Unregister(ids[0]); ok {
		t.Error("Unregister() returned an invalidated value")
	}
	if rep := r.GenerateReport(); rep.NumKeptFromUser != 2 || rep.NumError != 1 || rep.NumAllocated != 3 {
		t.Errorf("GenerateReport() = %+v", rep)
	}
}
