package diag

import (
	"strconv"
	"strings"
)

// Step is one segment of a field path. Index is -1 when the step names a
// field rather than an element of a sequence.
type Step struct {
	Field string
	Index int
}

func (s Step) String() string {
	if s.Index < 0 {
		return s.Field
	}
	return s.Field + "[" + strconv.Itoa(s.Index) + "]"
}

// Trace is an immutable snapshot of a Context's path. Records captured at
// the same path share one Trace.
type Trace struct {
	steps []Step
	text  string
}

func newTrace(steps []Step) *Trace {
	t := &Trace{steps: append([]Step(nil), steps...)}
	t.text = formatSteps(t.steps)
	return t
}

func formatSteps(steps []Step) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Steps returns a copy of the path segments.
func (t *Trace) Steps() []Step { return append([]Step(nil), t.steps...) }

// Len returns the number of steps.
func (t *Trace) Len() int { return len(t.steps) }

// String renders the path as "colorTargets[2].format". The root path is
// the empty string.
func (t *Trace) String() string { return t.text }
