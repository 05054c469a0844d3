// Package diag accumulates validation diagnostics together with the field
// path at which each one was found.
//
// Validation code walks a descriptor with Enter, Index and Leave, and turns
// failures into records with Report or Result:
//
//	ctx := diag.New()
//	tok := ctx.Enter("entries")
//	for i, e := range desc.Entries {
//	    ctx.Index(i)
//	    if e.Visibility == 0 {
//	        ctx.Report(diag.CreateBindGroupLayout(errNoVisibility))
//	    }
//	}
//	ctx.Leave(tok)
//	if err := ctx.Err(); err != nil {
//	    // err.Error() == "entries[1]: bind group layout creation failed: ..."
//	}
//
// The *Error returned by Report is a marker: holding one proves the failure
// was captured. TryBlock refuses to report success while records are
// pending.
package diag
