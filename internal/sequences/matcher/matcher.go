// Package matcher selects the nurture sequence for a lead.
package matcher

import (
	"strings"

	"leadflow_backend/internal/sequences/domain"
)

// Match picks the single sequence targeting the lead's pipeline status whose
// score band contains the score. Overlapping bands are a configuration error
// the matcher tolerates with a deterministic tie-break: the narrowest band
// wins, then the higher minimum, then the lexicographically smallest id.
// Returns false when no active sequence matches.
func Match(sequences []domain.Sequence, score int, status string) (domain.Sequence, bool) {
	var best domain.Sequence
	found := false

	for _, seq := range sequences {
		if !seq.Matches(score, status) {
			continue
		}
		if !found || better(seq, best) {
			best = seq
			found = true
		}
	}
	return best, found
}

func better(a, b domain.Sequence) bool {
	if a.BandWidth() != b.BandWidth() {
		return a.BandWidth() < b.BandWidth()
	}
	if a.ScoreMin != b.ScoreMin {
		return a.ScoreMin > b.ScoreMin
	}
	return strings.Compare(a.ID.String(), b.ID.String()) < 0
}
