// Package objstore is forester's durable content-addressed object
// store: the four object kinds (Blob, Tree, Commit, Mesh) and their
// save/load/exists/delete contract over the fanout filesystem layout
// described in the repository layout (objects/<kind>/aa/bb/<rest>).
//
// All object kinds are written through a github.com/go-git/go-billy/v6
// Filesystem rather than the os package directly, so the same Store
// can run against a real repository (osfs) or an in-memory fixture
// (memfs) in tests.
package objstore
