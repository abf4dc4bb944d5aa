// Package upload hashes a file selection and submits it as one scan batch.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/apk-scanner/client/internal/hasher"
	"github.com/apk-scanner/client/internal/models"
)

// Scanner sends a batch to the classification service.
type Scanner interface {
	Scan(ctx context.Context, files []models.SelectedFile) ([]models.BackendResult, error)
}

// Batch is the outcome of one orchestration: the verdicts together with the
// index captured when the batch was hashed.
type Batch struct {
	ID         string
	Index      *hasher.DigestIndex
	Results    []models.BackendResult
	Unreadable []string
	Files      int
	Bytes      int64
	Elapsed    time.Duration
}

// Orchestrator runs hash-then-scan for a selection.
type Orchestrator struct {
	hasher   *hasher.Hasher
	scanner  Scanner
	maxBytes int64
	logger   *log.Logger
}

// NewOrchestrator creates an Orchestrator. maxBytes <= 0 disables the size check.
func NewOrchestrator(h *hasher.Hasher, scanner Scanner, maxBytes int64, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		hasher:   h,
		scanner:  scanner,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Run hashes files, then sends every readable file in a single request.
// Unreadable files are left out of the request and reported in the batch.
func (o *Orchestrator) Run(ctx context.Context, files []models.SelectedFile) (*Batch, error) {
	if len(files) == 0 {
		return nil, models.ErrEmptySelection
	}

	batch := &Batch{ID: uuid.New().String()}
	start := time.Now()
	o.logger.Infof("[Batch %s] hashing %d files", batch.ID[:8], len(files))

	hashed, err := o.hasher.Hash(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("hashing selection: %w", err)
	}
	batch.Index = hashed.Index
	batch.Unreadable = hashed.Unreadable
	batch.Files = len(hashed.Readable)
	batch.Bytes = hashed.Bytes

	// Rejected batches are still returned so callers can report unreadable files.
	if len(hashed.Readable) == 0 {
		return batch, models.ErrNothingReadable
	}
	if o.maxBytes > 0 && hashed.Bytes > o.maxBytes {
		return batch, fmt.Errorf("%w: %d bytes, limit %d", models.ErrBatchTooLarge, hashed.Bytes, o.maxBytes)
	}

	o.logger.Infof("[Batch %s] uploading %d files (%d bytes, %d unreadable)",
		batch.ID[:8], len(hashed.Readable), hashed.Bytes, len(hashed.Unreadable))

	results, err := o.scanner.Scan(ctx, hashed.Readable)
	if err != nil {
		o.logger.Warnf("[Batch %s] scan failed: %v", batch.ID[:8], err)
		return nil, fmt.Errorf("scanning batch: %w", err)
	}

	batch.Results = results
	batch.Elapsed = time.Since(start)
	o.logger.Infof("[Batch %s] %d verdicts in %s", batch.ID[:8], len(results), batch.Elapsed.Round(time.Millisecond))
	return batch, nil
}
