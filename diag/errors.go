package diag

import "strings"

// Errors is the drained content of a Context returned as an error.
type Errors []Record

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "diag: no diagnostics"
	case 1:
		return e[0].String()
	}
	var b strings.Builder
	b.WriteString(e[0].String())
	for _, r := range e[1:] {
		b.WriteString("; ")
		b.WriteString(r.String())
	}
	return b.String()
}

// Unwrap exposes every Diagnostic so errors.Is and errors.As reach the
// captured causes.
func (e Errors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, r := range e {
		errs[i] = r.Diagnostic
	}
	return errs
}
