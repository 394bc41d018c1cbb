// Package core provides the types shared across every forester
// component: the author Identity threaded through the commit
// operations, and the sentinel errors that make up the core's error
// taxonomy.
//
// # Identity
//
// Identity identifies the author of a commit:
//
//	id := core.Identity{Name: "Jamie Fox", Email: "jamie@example.com"}
//
// # Errors
//
// Callers match against the sentinel values with errors.Is, e.g.
//
//	if errors.Is(err, core.ErrUncommittedChanges) {
//	    // offer auto-stash
//	}
package core
