package binding

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore"
)

// Error types carried by ErrorInfo.
const (
	ErrorTypeValidation  = "validation"
	ErrorTypeOutOfMemory = "out-of-memory"
	ErrorTypeLost        = "lost"
)

// Result is what an op hands back to the host: a rid, a GPU error, or
// both when the resource was created in an error state.
type Result struct {
	Rid Rid        `json:"rid,omitempty"`
	Err *ErrorInfo `json:"err,omitempty"`
}

// ErrorInfo is the host-facing form of a GPU error.
type ErrorInfo struct {
	Type        string           `json:"type"`
	Message     string           `json:"message"`
	Diagnostics []DiagnosticInfo `json:"diagnostics,omitempty"`
}

// DiagnosticInfo is one record of a validation error with the path of the
// descriptor field it was raised at.
type DiagnosticInfo struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// JSON encodes r.
func (r Result) JSON() ([]byte, error) {
	return json.Marshal(r)
}

func errorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Type: ErrorTypeValidation, Message: err.Error()}
	switch {
	case errors.Is(err, wgcore.ErrDeviceLost), errors.Is(err, wgcore.ErrDeviceDestroyed):
		info.Type = ErrorTypeLost
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		info.Type = ErrorTypeOutOfMemory
	}
	var verr *wgcore.ValidationError
	if errors.As(err, &verr) {
		for _, r := range verr.Records {
			d := DiagnosticInfo{Message: r.Diagnostic.Error()}
			if r.Trace != nil {
				d.Path = r.Trace.String()
			}
			info.Diagnostics = append(info.Diagnostics, d)
		}
	}
	return info
}

func ridResult(rid Rid, err error) Result {
	return Result{Rid: rid, Err: errorInfo(err)}
}

// OperationError is returned by ops that fail outright rather than
// reporting through a Result.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string { return "binding: " + e.Op + ": " + e.Err.Error() }

func (e *OperationError) Unwrap() error { return e.Err }
