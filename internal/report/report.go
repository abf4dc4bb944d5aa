// Package report renders scan sessions for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/apk-scanner/client/internal/models"
)

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
)

// labelColor follows the result card colours: green for benign, yellow for
// riskware and red for anything else.
func labelColor(l models.Label) func(a ...interface{}) string {
	switch l {
	case models.LabelBenign:
		return successColor
	case models.LabelRiskware:
		return warningColor
	default:
		return errorColor
	}
}

// Printer writes sessions to w.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) line(prefix, format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Session prints s according to its phase.
func (p *Printer) Session(s models.ScanSession) {
	switch s.Phase {
	case models.PhaseIdle:
		return
	case models.PhaseLoading:
		p.line(infoColor("[*]"), "Waiting for %s result...", s.Kind)
		return
	case models.PhaseError:
		p.line(errorColor("[-]"), "%s", s.ErrorMessage)
	case models.PhaseSuccess:
		if len(s.Records) == 0 {
			p.line(infoColor("[*]"), "No results")
		}
		for _, r := range s.Records {
			p.Record(r)
		}
	}

	p.notes(s)
}

// Record prints one verdict card.
func (p *Printer) Record(r models.DisplayRecord) {
	paint := labelColor(r.Prediction.Label)

	title := r.Digest.Short()
	if r.HasFilename() {
		title = r.Filename
	}
	p.line(paint("[+]"), "%s", title)
	fmt.Fprintf(p.w, "    SHA-256:     %s\n", r.Digest)
	fmt.Fprintf(p.w, "    Detection:   %s\n", paint(r.Prediction.DisplayDetection()))
	fmt.Fprintf(p.w, "    Probability: %s\n", r.Prediction.DisplayProbability())
}

func (p *Printer) notes(s models.ScanSession) {
	if len(s.Unreadable) > 0 {
		p.line(warningColor("[!]"), "Could not read: %s", strings.Join(s.Unreadable, ", "))
	}
	if len(s.Unscanned) > 0 {
		p.line(warningColor("[!]"), "No verdict returned for: %s", strings.Join(s.Unscanned, ", "))
	}
}
