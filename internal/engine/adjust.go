package engine

import "github.com/cayyus/engineerverse/internal/taxonomy"

// Exploration factors:
//   - selected terms decay to 30% of their weight
//   - every other term recovers by 20%
//   - no renormalisation; the total is allowed to drift round to round
const (
	DefaultDecayFactor    = 0.3
	DefaultRecoveryFactor = 0.2
)

// Adjust mutates set in place after a selection round. Terms named in
// selected are multiplied by decay, all others by (1 + recovery).
func Adjust(set taxonomy.TermSet, selected []taxonomy.Term, decay, recovery float64) {
	picked := make(map[string]bool, len(selected))
	for _, t := range selected {
		picked[t.Name] = true
	}
	for i := range set {
		if picked[set[i].Name] {
			set[i].Weight *= decay
		} else {
			set[i].Weight *= 1 + recovery
		}
	}
}
