package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/apk-scanner/client/internal/models"
)

func init() {
	color.NoColor = true
}

func TestSessionSuccess(t *testing.T) {
	d := models.DigestOf([]byte("PK-a"))
	s := models.NewScanSession()
	s.Phase = models.PhaseSuccess
	s.Records = []models.DisplayRecord{
		{Filename: "a.apk", Digest: d, Prediction: models.NewPrediction("benign", 0.999999)},
	}
	s.Unscanned = []string{"notes.txt"}

	var buf bytes.Buffer
	NewPrinter(&buf).Session(s)
	out := buf.String()

	assert.Contains(t, out, "[+] a.apk\n")
	assert.Contains(t, out, "SHA-256:     "+d.String())
	assert.Contains(t, out, "Detection:   Benign")
	assert.Contains(t, out, "Probability: 0.999")
	assert.Contains(t, out, "[!] No verdict returned for: notes.txt")
}

func TestRecordWithoutFilename(t *testing.T) {
	d := models.DigestOf([]byte("PK-b"))

	var buf bytes.Buffer
	NewPrinter(&buf).Record(models.DisplayRecord{Digest: d, Prediction: models.NewPrediction("adware", 0.5)})
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "[+] "+d.Short()+"\n"))
	assert.Contains(t, out, "Detection:   Adware")
	assert.Contains(t, out, "Probability: 0.500")
}

func TestSessionError(t *testing.T) {
	s := models.NewScanSession()
	s.Phase = models.PhaseError
	s.ErrorMessage = models.MessageNotFound
	s.Unreadable = []string{"gone.apk"}

	var buf bytes.Buffer
	NewPrinter(&buf).Session(s)

	assert.Equal(t, "[-] "+models.MessageNotFound+"\n[!] Could not read: gone.apk\n", buf.String())
}

func TestSessionIdlePrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Session(models.NewScanSession())
	assert.Empty(t, buf.String())
}

func TestSessionEmptySuccess(t *testing.T) {
	s := models.NewScanSession()
	s.Phase = models.PhaseSuccess

	var buf bytes.Buffer
	NewPrinter(&buf).Session(s)
	assert.Equal(t, "[*] No results\n", buf.String())
}
