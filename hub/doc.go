// Package hub provides the identifier allocation and slot storage that back
// every resource kind.
//
// A Registry maps backend-tagged identifiers to values. A slot can also hold
// an error record, bound through AssignError when creation failed before a
// value could exist. Looking up such an identifier returns an
// InvalidResourceError that unwraps to the original failure, so callers
// that only check the lookup error still report the right cause.
package hub
