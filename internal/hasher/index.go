package hasher

import (
	"sort"

	"github.com/apk-scanner/client/internal/models"
)

// Entry pairs a filename with the digest of its content.
type Entry struct {
	Name   string
	Digest models.Digest
}

// DigestIndex maps digests back to the filenames that produced them.
// It is built once and never modified.
//
// Files with identical content share a digest; the entry inserted last
// keeps the name.
type DigestIndex struct {
	names map[models.Digest]string
}

// BuildIndex inserts entries in order, later entries overwriting earlier ones
// with the same digest.
func BuildIndex(entries []Entry) *DigestIndex {
	names := make(map[models.Digest]string, len(entries))
	for _, e := range entries {
		names[e.Digest] = e.Name
	}
	return &DigestIndex{names: names}
}

// Lookup returns the filename recorded for d. A nil index holds nothing.
func (x *DigestIndex) Lookup(d models.Digest) (string, bool) {
	if x == nil {
		return "", false
	}
	name, ok := x.names[d]
	return name, ok
}

// Len returns the number of distinct digests.
func (x *DigestIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.names)
}

// Digests returns the indexed digests in ascending order.
func (x *DigestIndex) Digests() []models.Digest {
	if x == nil {
		return nil
	}
	out := make([]models.Digest, 0, len(x.names))
	for d := range x.names {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
