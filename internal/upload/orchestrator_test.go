package upload

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-scanner/client/internal/hasher"
	"github.com/apk-scanner/client/internal/logging"
	"github.com/apk-scanner/client/internal/models"
)

type scanFunc func(ctx context.Context, files []models.SelectedFile) ([]models.BackendResult, error)

func (f scanFunc) Scan(ctx context.Context, files []models.SelectedFile) ([]models.BackendResult, error) {
	return f(ctx, files)
}

func newOrchestrator(s Scanner, maxBytes int64) *Orchestrator {
	return NewOrchestrator(hasher.New(2, logging.Discard()), s, maxBytes, logging.Discard())
}

func TestOrchestrator_Run(t *testing.T) {
	var sent []string
	scanner := scanFunc(func(ctx context.Context, files []models.SelectedFile) ([]models.BackendResult, error) {
		for _, f := range files {
			sent = append(sent, f.Name)
		}
		return []models.BackendResult{
			{Digest: models.DigestOf([]byte("PK b")), Prediction: models.NewPrediction("riskware", 0.7)},
		}, nil
	})

	broken := models.SelectedFile{Name: "broken.apk", Open: func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}}

	batch, err := newOrchestrator(scanner, 0).Run(context.Background(), []models.SelectedFile{
		models.FileFromBytes("a.apk", []byte("PK a")),
		broken,
		models.FileFromBytes("b.apk", []byte("PK b")),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.apk", "b.apk"}, sent, "unreadable files are not uploaded")
	assert.Equal(t, []string{"broken.apk"}, batch.Unreadable)
	assert.Equal(t, 2, batch.Index.Len())
	assert.Len(t, batch.Results, 1)
	assert.Equal(t, 2, batch.Files)
	assert.NotEmpty(t, batch.ID)
}

func TestOrchestrator_RunErrors(t *testing.T) {
	never := scanFunc(func(ctx context.Context, files []models.SelectedFile) ([]models.BackendResult, error) {
		t.Fatal("scanner must not be called")
		return nil, nil
	})

	_, err := newOrchestrator(never, 0).Run(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrEmptySelection)

	broken := models.SelectedFile{Name: "x", Open: func() (io.ReadCloser, error) { return nil, errors.New("gone") }}
	batch, err := newOrchestrator(never, 0).Run(context.Background(), []models.SelectedFile{broken})
	assert.ErrorIs(t, err, models.ErrNothingReadable)
	require.NotNil(t, batch)
	assert.Equal(t, []string{"x"}, batch.Unreadable)

	_, err = newOrchestrator(never, 3).Run(context.Background(), []models.SelectedFile{
		models.FileFromBytes("big.apk", []byte("PK too big")),
	})
	assert.ErrorIs(t, err, models.ErrBatchTooLarge)
}

func TestOrchestrator_PropagatesScanErrors(t *testing.T) {
	backendErr := &models.BackendError{Message: "model not loaded"}
	scanner := scanFunc(func(ctx context.Context, files []models.SelectedFile) ([]models.BackendResult, error) {
		return nil, backendErr
	})

	_, err := newOrchestrator(scanner, 0).Run(context.Background(), []models.SelectedFile{
		models.FileFromBytes("a.apk", []byte("PK")),
	})
	var be *models.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "model not loaded", models.UserMessage(err))
}
