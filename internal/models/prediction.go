package models

import (
	"strconv"
	"strings"
)

// Label is the detection class shown to the user.
type Label string

const (
	LabelBenign   Label = "benign"
	LabelRiskware Label = "riskware"
	// LabelOther covers every other backend class (adware, banking, sms, ...)
	// and anything the client does not recognise.
	LabelOther Label = "other"
)

// ParseLabel maps a backend "det" value onto a Label. It never fails.
func ParseLabel(det string) Label {
	switch strings.ToLower(strings.TrimSpace(det)) {
	case "benign":
		return LabelBenign
	case "riskware":
		return LabelRiskware
	default:
		return LabelOther
	}
}

// Prediction is a backend verdict for one digest.
type Prediction struct {
	Label Label `json:"label"`
	// Detection is the raw class name the backend reported.
	Detection   string  `json:"detection"`
	Probability float64 `json:"probability"`
}

// NewPrediction builds a Prediction from the backend's det/proba pair.
func NewPrediction(det string, proba float64) Prediction {
	return Prediction{
		Label:       ParseLabel(det),
		Detection:   det,
		Probability: proba,
	}
}

// DisplayDetection is the capitalised detection name, falling back to the
// label when the backend sent nothing.
func (p Prediction) DisplayDetection() string {
	name := strings.TrimSpace(p.Detection)
	if name == "" {
		name = string(p.Label)
	}
	if name == "" {
		name = string(LabelOther)
	}
	r := []rune(name)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// DisplayProbability is the probability truncated to three decimals.
func (p Prediction) DisplayProbability() string {
	return FormatProbability(p.Probability)
}

// FormatProbability renders p with exactly three decimals, truncating rather
// than rounding: 0.999999 -> "0.999", 0.5 -> "0.500", 1 -> "1.000".
// It works on the shortest decimal representation of p so that values like
// 0.29 are not pushed below their printed form by binary rounding.
func FormatProbability(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) > 3 {
		frac = frac[:3]
	}
	for len(frac) < 3 {
		frac += "0"
	}
	return intPart + "." + frac
}
