package hub

import (
	"slices"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/id"
)

// IdentityManager hands out identifiers for one resource kind on one
// backend. Freed indices are reused with a bumped epoch so that stale
// identifiers can be told apart from the slot's new occupant.
type IdentityManager struct {
	mu       sync.Mutex
	backend  gputypes.Backend
	epochs   []uint32
	free     []uint32
	live     int
	released int
}

// NewIdentityManager returns a manager producing identifiers tagged with
// backend.
func NewIdentityManager(backend gputypes.Backend) *IdentityManager {
	return &IdentityManager{backend: backend}
}

// Process allocates a fresh identifier.
func (m *IdentityManager) Process() id.RawID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.live++
	if n := len(m.free); n > 0 {
		index := m.free[n-1]
		m.free = m.free[:n-1]
		m.released--
		epoch := m.epochs[index] + 1
		if epoch > id.MaxEpoch {
			epoch = 1
		}
		m.epochs[index] = epoch
		return id.Zip(index, epoch, m.backend)
	}
	index := uint32(len(m.epochs))
	m.epochs = append(m.epochs, 1)
	return id.Zip(index, 1, m.backend)
}

// MarkUsed records an identifier chosen by the caller so that Process never
// returns the same slot while it is alive.
func (m *IdentityManager) MarkUsed(raw id.RawID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, epoch, _ := raw.Unzip()
	for uint32(len(m.epochs)) < index {
		m.free = append(m.free, uint32(len(m.epochs)))
		m.epochs = append(m.epochs, 0)
		m.released++
	}
	if uint32(len(m.epochs)) == index {
		m.epochs = append(m.epochs, epoch)
	} else {
		if i := slices.Index(m.free, index); i >= 0 {
			m.free = slices.Delete(m.free, i, i+1)
			m.released--
		}
		m.epochs[index] = epoch
	}
	m.live++
}

// Free returns an identifier's slot to the pool.
func (m *IdentityManager) Free(raw id.RawID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, epoch, _ := raw.Unzip()
	if int(index) >= len(m.epochs) || m.epochs[index] != epoch || slices.Contains(m.free, index) {
		return
	}
	m.free = append(m.free, index)
	m.live--
	m.released++
}

// counts returns the number of live and released identifiers.
func (m *IdentityManager) counts() (live, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live, m.released
}
