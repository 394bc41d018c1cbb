package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"

	"github.com/go-git/go-billy/v6"

	"github.com/forestervcs/forester/core"
)

// chunkSize is the fixed read size for streaming file hashes.
const chunkSize = 8192

// Kind names one of the four object kinds, matching the directory name
// each is stored under in objects/<kind>/...
type Kind string

const (
	KindBlob   Kind = "blobs"
	KindTree   Kind = "trees"
	KindCommit Kind = "commits"
	KindMesh   Kind = "meshes"
)

// Hash returns the hex-encoded SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader streams r in fixed-size chunks and returns its hex SHA-256
// digest, mirroring compute_file_hash's chunked read.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash reader: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile streams the file at p (relative to fs) and returns its hex
// SHA-256 digest.
func HashFile(fs billy.Filesystem, p string) (string, error) {
	f, err := fs.Open(p)
	if err != nil {
		return "", fmt.Errorf("hash file %s: %w", p, err)
	}
	defer f.Close()
	return HashReader(f)
}

// ObjectPath maps hash to its fanout location under base/objects/kind,
// using a 2+2 split (aa/bb/rest) that bounds directory width. For
// KindMesh the returned path names a directory; for every other kind
// it names a file.
func ObjectPath(base string, kind Kind, hash string) (string, error) {
	if len(hash) < 4 {
		return "", fmt.Errorf("%w: hash %q shorter than 4 characters", core.ErrInvalidHash, hash)
	}
	return path.Join(base, "objects", string(kind), hash[0:2], hash[2:4], hash[4:]), nil
}
