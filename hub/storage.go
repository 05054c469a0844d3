package hub

import (
	"fmt"
	"iter"

	"github.com/gogpu/wgcore/id"
)

type elementState uint8

const (
	vacant elementState = iota
	occupied
	errored
)

type element[T any] struct {
	state elementState
	epoch uint32
	label string
	value T
	cause error
}

// storage is the slot table behind a Registry. Each slot is vacant,
// occupied by a value, or holds an error record left by a failed creation.
//
// storage does no locking; Registry guards it.
type storage[T any] struct {
	kind  id.Kind
	elems []element[T]
}

func newStorage[T any](kind id.Kind) storage[T] {
	return storage[T]{kind: kind}
}

func (s *storage[T]) slot(raw id.RawID) *element[T] {
	index := raw.Index()
	for uint32(len(s.elems)) <= index {
		s.elems = append(s.elems, element[T]{})
	}
	e := &s.elems[index]
	if e.state != vacant {
		panic(fmt.Sprintf("hub: %s%v is already occupied", s.kind, raw))
	}
	return e
}

func (s *storage[T]) insert(raw id.RawID, label string, v T) {
	e := s.slot(raw)
	*e = element[T]{state: occupied, epoch: raw.Epoch(), label: label, value: v}
}

func (s *storage[T]) insertError(raw id.RawID, label string, cause error) {
	e := s.slot(raw)
	*e = element[T]{state: errored, epoch: raw.Epoch(), label: label, cause: cause}
}

// lookup returns the slot for raw, or nil if it is out of range or vacant.
// A live slot with a different epoch means the caller kept an identifier
// past its drop and the slot was reused, which is a programming error.
func (s *storage[T]) lookup(raw id.RawID) *element[T] {
	index := raw.Index()
	if int(index) >= len(s.elems) {
		return nil
	}
	e := &s.elems[index]
	if e.state == vacant {
		return nil
	}
	if e.epoch != raw.Epoch() {
		panic(fmt.Sprintf("hub: %s[%d] is no longer alive (epoch %d, have %d)",
			s.kind, index, raw.Epoch(), e.epoch))
	}
	return e
}

func (s *storage[T]) get(raw id.RawID) (T, error) {
	e := s.lookup(raw)
	if e == nil {
		var zero T
		return zero, &InvalidResourceError{Kind: s.kind, ID: raw}
	}
	if e.state == errored {
		var zero T
		return zero, &InvalidResourceError{Kind: s.kind, ID: raw, Label: e.label, Cause: e.cause}
	}
	return e.value, nil
}

func (s *storage[T]) label(raw id.RawID) string {
	if e := s.lookup(raw); e != nil {
		return e.label
	}
	return ""
}

func (s *storage[T]) remove(raw id.RawID) (T, bool) {
	var zero T
	e := s.lookup(raw)
	if e == nil {
		return zero, false
	}
	v, ok := e.value, e.state == occupied
	*e = element[T]{}
	return v, ok
}

func (s *storage[T]) all() iter.Seq2[int, *element[T]] {
	return func(yield func(int, *element[T]) bool) {
		for i := range s.elems {
			if s.elems[i].state == vacant {
				continue
			}
			if !yield(i, &s.elems[i]) {
				return
			}
		}
	}
}

func (s *storage[T]) counts() (kept, errs int) {
	for _, e := range s.all() {
		switch e.state {
		case occupied:
			kept++
		case errored:
			errs++
		}
	}
	return kept, errs
}
