// Package hasher computes content digests for a file selection.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"runtime"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"github.com/apk-scanner/client/internal/models"
)

// Result is the outcome of hashing a selection.
type Result struct {
	Index *DigestIndex
	// Readable holds the files that were hashed, in selection order.
	Readable []models.SelectedFile
	// Unreadable holds the names of files that could not be read, in
	// selection order.
	Unreadable []string
	// Bytes is the total size of the readable files.
	Bytes int64
}

// Hasher digests files in parallel.
type Hasher struct {
	workers int
	logger  *log.Logger
}

// New creates a Hasher running at most workers digests at once.
// workers <= 0 means one per CPU.
func New(workers int, logger *log.Logger) *Hasher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Hasher{workers: workers, logger: logger}
}

type fileDigest struct {
	digest models.Digest
	size   int64
	err    error
}

// Hash digests every file in files. A file that cannot be read is reported
// in Result.Unreadable and does not stop the others. The only error returned
// is ctx's.
func (h *Hasher) Hash(ctx context.Context, files []models.SelectedFile) (*Result, error) {
	digests := make([]fileDigest, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i := range files {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, n, err := DigestFile(files[i])
			digests[i] = fileDigest{digest: d, size: n, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	entries := make([]Entry, 0, len(files))
	for i, f := range files {
		fd := digests[i]
		if fd.err != nil {
			h.logger.Warnf("cannot read %s: %v", f.Name, fd.err)
			res.Unreadable = append(res.Unreadable, f.Name)
			continue
		}
		h.logger.Debugf("%s -> %s (%d bytes)", f.Name, fd.digest.Short(), fd.size)
		entries = append(entries, Entry{Name: f.Name, Digest: fd.digest})
		res.Readable = append(res.Readable, f)
		res.Bytes += fd.size
	}
	res.Index = BuildIndex(entries)

	if dupes := len(entries) - res.Index.Len(); dupes > 0 {
		h.logger.Infof("%d selected files share content with another file; the last one keeps the name", dupes)
	}
	return res, nil
}

// DigestFile reads f to the end and returns its digest and size.
func DigestFile(f models.SelectedFile) (models.Digest, int64, error) {
	if f.Open == nil {
		return "", 0, fmt.Errorf("%s: no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	h := sha256.New()
	n, err := io.Copy(h, rc)
	if err != nil {
		return "", n, err
	}
	return models.Digest(hex.EncodeToString(h.Sum(nil))), n, nil
}
