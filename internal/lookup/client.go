// Package lookup resolves a single digest to its stored verdict.
package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/apk-scanner/client/internal/models"
)

// Querier fetches the stored verdict for one digest.
type Querier interface {
	Query(ctx context.Context, d models.Digest) (models.BackendResult, error)
}

// Client is the single-digest lookup path. It never touches a DigestIndex.
type Client struct {
	querier Querier
	logger  *log.Logger
}

// NewClient creates a lookup Client.
func NewClient(q Querier, logger *log.Logger) *Client {
	return &Client{querier: q, logger: logger}
}

// NormalizeDigest trims surrounding space and lowercases raw before
// validating it, so pasted uppercase digests are accepted.
func NormalizeDigest(raw string) (models.Digest, error) {
	return models.ParseDigest(strings.ToLower(strings.TrimSpace(raw)))
}

// Lookup validates raw, issues exactly one query and returns a single record
// without filename. Malformed input fails before any request is made.
func (c *Client) Lookup(ctx context.Context, raw string) ([]models.DisplayRecord, error) {
	d, err := NormalizeDigest(raw)
	if err != nil {
		return nil, err
	}

	res, err := c.querier.Query(ctx, d)
	if err != nil {
		c.logger.Infof("lookup %s: %v", d.Short(), err)
		return nil, fmt.Errorf("looking up %s: %w", d.Short(), err)
	}

	return []models.DisplayRecord{{
		Digest:     res.Digest,
		Prediction: res.Prediction,
	}}, nil
}
