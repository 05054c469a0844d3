package diag

import (
	"fmt"
	"iter"
)

// Record pairs a captured Diagnostic with the path it was captured at.
type Record struct {
	Trace      *Trace
	Diagnostic Diagnostic
}

func (r Record) String() string {
	if r.Trace == nil || r.Trace.String() == "" {
		return r.Diagnostic.Error()
	}
	return r.Trace.String() + ": " + r.Diagnostic.Error()
}

// Error is returned by Report and Result once a failure has been captured
// into a Context. It carries no information of its own; the details live in
// the Context. Call sites return it to signal "diagnosed, stop here".
type Error struct {
	ctx *Context
}

// Token is returned by Enter and must be handed back to the matching Leave.
type Token struct {
	depth int
	field string
}

// Context accumulates diagnostics during one validation pass and tracks the
// descriptor field currently being validated.
//
// A Context is used by a single goroutine for a single top-level call.
type Context struct {
	records  []Record
	trace    []Step
	stored   *Trace
	interned map[string]*Trace
}

// New returns an empty Context.
func New() *Context {
	return &Context{}
}

// Enter pushes field onto the path.
func (c *Context) Enter(field string) Token {
	c.trace = append(c.trace, Step{Field: field, Index: -1})
	c.stored = nil
	return Token{depth: len(c.trace), field: field}
}

// Leave pops the step pushed by the Enter that returned t. Leaving out of
// order corrupts every later path, so it panics.
func (c *Context) Leave(t Token) {
	n := len(c.trace)
	if n == 0 || n != t.depth || c.trace[n-1].Field != t.field {
		panic(fmt.Sprintf("diag: leave(%q) at depth %d does not match trace %q",
			t.field, t.depth, formatSteps(c.trace)))
	}
	c.trace = c.trace[:n-1]
	c.stored = nil
}

// Index marks the innermost step as element i of a sequence.
func (c *Context) Index(i int) {
	n := len(c.trace)
	if n == 0 {
		panic("diag: index without an entered field")
	}
	c.trace[n-1].Index = i
	c.stored = nil
}

// Path returns the current path as text.
func (c *Context) Path() string { return formatSteps(c.trace) }

func (c *Context) intern() *Trace {
	if c.stored != nil {
		return c.stored
	}
	key := formatSteps(c.trace)
	if t, ok := c.interned[key]; ok {
		c.stored = t
		return t
	}
	if c.interned == nil {
		c.interned = make(map[string]*Trace)
	}
	t := newTrace(c.trace)
	c.interned[key] = t
	c.stored = t
	return t
}

// Report captures d at the current path.
func (c *Context) Report(d Diagnostic) *Error {
	c.records = append(c.records, Record{Trace: c.intern(), Diagnostic: d})
	return &Error{ctx: c}
}

// Result captures err, wrapped by wrap, at the current path. A nil err
// passes v through.
func Result[T any](c *Context, v T, err error, wrap func(error) Diagnostic) (T, *Error) {
	if err != nil {
		var zero T
		return zero, c.Report(wrap(err))
	}
	return v, nil
}

// TryBlock runs fn as one unit of validation. It fails if fn fails, and it
// also fails if fn claims success while diagnostics are pending; the latter
// is a bug in fn and is logged.
func (c *Context) TryBlock(fn func() *Error) *Error {
	if e := fn(); e != nil {
		return e
	}
	if len(c.records) > 0 {
		slogger().Warn("diag: validation returned success with pending diagnostics",
			"count", len(c.records), "first", c.records[0].String())
		return &Error{ctx: c}
	}
	return nil
}

// Try is TryBlock for blocks that produce a value.
func Try[T any](c *Context, fn func() (T, *Error)) (T, *Error) {
	var v T
	e := c.TryBlock(func() *Error {
		var err *Error
		v, err = fn()
		return err
	})
	if e != nil {
		var zero T
		return zero, e
	}
	return v, nil
}

// Drain removes and returns every captured record.
func (c *Context) Drain() []Record {
	r := c.records
	c.records = nil
	return r
}

// All iterates over captured records without removing them.
func (c *Context) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, r := range c.records {
			if !yield(r) {
				return
			}
		}
	}
}

// IsEmpty reports whether nothing has been captured.
func (c *Context) IsEmpty() bool { return len(c.records) == 0 }

// Len returns the number of captured records.
func (c *Context) Len() int { return len(c.records) }

// Err drains c into an Errors value, or returns nil if c is empty.
func (c *Context) Err() error {
	if c.IsEmpty() {
		return nil
	}
	return Errors(c.Drain())
}
