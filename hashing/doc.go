// Package hashing computes the SHA-256 content digests forester uses
// to address every object, and maps those digests onto the on-disk
// fanout layout described by the repository layout in forester's
// external interface (objects/<kind>/aa/bb/<rest>).
package hashing
