// Package reconcile attaches filenames to backend verdicts.
package reconcile

import (
	"sort"

	"github.com/apk-scanner/client/internal/hasher"
	"github.com/apk-scanner/client/internal/models"
)

// Reconcile turns results into display records, naming each one from index.
// A digest missing from index yields a record without filename.
//
// Records are ordered by filename (byte-wise), unnamed records first, with
// digest, label and probability as tie-breakers, so the output does not
// depend on the order the backend chose.
func Reconcile(results []models.BackendResult, index *hasher.DigestIndex) []models.DisplayRecord {
	records := make([]models.DisplayRecord, 0, len(results))
	for _, r := range results {
		name, _ := index.Lookup(r.Digest)
		records = append(records, models.DisplayRecord{
			Filename:   name,
			Digest:     r.Digest,
			Prediction: r.Prediction,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
	return records
}

func less(a, b models.DisplayRecord) bool {
	if a.HasFilename() != b.HasFilename() {
		return !a.HasFilename()
	}
	if a.Filename != b.Filename {
		return a.Filename < b.Filename
	}
	if a.Digest != b.Digest {
		return a.Digest < b.Digest
	}
	if a.Prediction.Detection != b.Prediction.Detection {
		return a.Prediction.Detection < b.Prediction.Detection
	}
	return a.Prediction.Probability < b.Prediction.Probability
}

// Unscanned returns, sorted, the names of indexed files for which results
// holds no verdict. The service drops parts it cannot classify without
// saying so; this is how they surface.
func Unscanned(index *hasher.DigestIndex, results []models.BackendResult) []string {
	answered := make(map[models.Digest]bool, len(results))
	for _, r := range results {
		answered[r.Digest] = true
	}

	var names []string
	for _, d := range index.Digests() {
		if answered[d] {
			continue
		}
		if name, ok := index.Lookup(d); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
