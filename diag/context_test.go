package diag

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

var (
	errFormat  = errors.New("format not renderable")
	errBinding = errors.New("duplicate binding")
)

func TestEnterLeaveRestoresTrace(t *testing.T) {
	c := New()
	a := c.Enter("a")
	b := c.Enter("b")
	if got := c.Path(); got != "a.b" {
		t.Errorf("Path() = %q, want %q", got, "a.b")
	}
	c.Leave(b)
	c.Leave(a)
	if got := c.Path(); got != "" {
		t.Errorf("Path() after leave = %q, want empty", got)
	}
}

func TestLeaveMismatchPanics(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *Context)
	}{
		{"out of order", func(c *Context) {
			a := c.Enter("a")
			c.Enter("b")
			c.Leave(a)
		}},
		{"twice", func(c *Context) {
			a := c.Enter("a")
			c.Leave(a)
			c.Leave(a)
		}},
		{"foreign token", func(c *Context) {
			other := New()
			tok := other.Enter("x")
			c.Enter("y")
			c.Leave(tok)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Leave() did not panic")
				}
			}()
			tt.run(New())
		})
	}
}

func TestIndexAnnotatesTopStep(t *testing.T) {
	c := New()
	tok := c.Enter("colorTargets")
	c.Index(2)
	inner := c.Enter("format")
	c.Report(CreateRenderPipeline(errFormat))
	c.Leave(inner)
	c.Leave(tok)

	records := c.Drain()
	if len(records) != 1 {
		t.Fatalf("Drain() returned %d records, want 1", len(records))
	}
	if got := records[0].Trace.String(); got != "colorTargets[2].format" {
		t.Errorf("Trace = %q, want %q", got, "colorTargets[2].format")
	}
	if !errors.Is(records[0].Diagnostic, errFormat) {
		t.Errorf("Diagnostic = %v, want cause %v", records[0].Diagnostic, errFormat)
	}
}

func TestIndexWithoutFieldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Index() on empty trace did not panic")
		}
	}()
	New().Index(0)
}

func TestReportInternsTrace(t *testing.T) {
	c := New()
	tok := c.Enter("entries")
	c.Index(1)
	c.Report(CreateBindGroupLayout(errBinding))
	c.Report(MissingFeatures(errFormat))
	c.Index(3)
	c.Report(CreateBindGroupLayout(errBinding))
	c.Index(1)
	c.Report(Stage(errFormat))
	c.Leave(tok)

	records := c.Drain()
	if len(records) != 4 {
		t.Fatalf("Drain() returned %d records, want 4", len(records))
	}
	if records[0].Trace != records[1].Trace {
		t.Error("consecutive captures at one path did not share a trace")
	}
	if records[0].Trace != records[3].Trace {
		t.Error("revisited path was not interned")
	}
	if records[0].Trace == records[2].Trace {
		t.Error("different paths share a trace")
	}
	if records[2].Trace.String() != "entries[3]" {
		t.Errorf("Trace = %q, want %q", records[2].Trace, "entries[3]")
	}
	if !c.IsEmpty() {
		t.Error("IsEmpty() = false after Drain")
	}
}

func TestResult(t *testing.T) {
	c := New()
	v, e := Result(c, 7, nil, Device)
	if e != nil || v != 7 {
		t.Errorf("Result(ok) = (%d, %v), want (7, nil)", v, e)
	}
	if !c.IsEmpty() {
		t.Error("Result(ok) captured a record")
	}

	v, e = Result(c, 7, errBinding, CreatePipelineLayout)
	if e == nil {
		t.Fatal("Result(err) returned nil marker")
	}
	if v != 0 {
		t.Errorf("Result(err) value = %d, want zero", v)
	}
	var got []Record
	for r := range c.All() {
		got = append(got, r)
	}
	if len(got) != 1 || got[0].Diagnostic.Kind != KindCreatePipelineLayout {
		t.Errorf("All() = %v", got)
	}
	if c.IsEmpty() {
		t.Error("All() drained the context")
	}
}

func TestTryBlock(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := New()
		if e := c.TryBlock(func() *Error { return nil }); e != nil {
			t.Error("TryBlock() failed on clean success")
		}
	})

	t.Run("propagates failure", func(t *testing.T) {
		c := New()
		e := c.TryBlock(func() *Error {
			return c.Report(Device(errFormat))
		})
		if e == nil {
			t.Error("TryBlock() succeeded after Report")
		}
	})

	t.Run("forgotten marker", func(t *testing.T) {
		var buf bytes.Buffer
		SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
		defer SetLogger(nil)

		c := New()
		e := c.TryBlock(func() *Error {
			c.Report(MissingDownlevelFlags(errFormat))
			return nil
		})
		if e == nil {
			t.Fatal("TryBlock() returned success with pending diagnostics")
		}
		if c.IsEmpty() {
			t.Error("pending diagnostic was discarded")
		}
		if !strings.Contains(buf.String(), "pending diagnostics") {
			t.Errorf("warning not logged, got %q", buf.String())
		}
	})
}

func TestTry(t *testing.T) {
	c := New()
	v, e := Try(c, func() (string, *Error) { return "ok", nil })
	if e != nil || v != "ok" {
		t.Errorf("Try() = (%q, %v)", v, e)
	}

	v, e = Try(c, func() (string, *Error) {
		c.Report(ImplicitLayout(errBinding))
		return "leaked", nil
	})
	if e == nil || v != "" {
		t.Errorf("Try() = (%q, %v), want failure with zero value", v, e)
	}
}

func TestErr(t *testing.T) {
	c := New()
	if err := c.Err(); err != nil {
		t.Errorf("Err() on empty context = %v", err)
	}
	tok := c.Enter("layout")
	c.Report(CreatePipelineLayout(errBinding))
	c.Leave(tok)
	c.Report(Device(errFormat))

	err := c.Err()
	if err == nil {
		t.Fatal("Err() = nil with records")
	}
	if !errors.Is(err, errBinding) || !errors.Is(err, errFormat) {
		t.Errorf("Err() = %v, want both causes reachable", err)
	}
	var d Diagnostic
	if !errors.As(err, &d) || d.Kind != KindCreatePipelineLayout {
		t.Errorf("errors.As() = %v", d)
	}
	want := "layout: pipeline layout creation failed: duplicate binding; device error: format not renderable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !c.IsEmpty() {
		t.Error("Err() did not drain")
	}
}
