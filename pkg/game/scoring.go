package game

import (
	"fmt"

	"github.com/cbodonnell/trustecho/pkg/game/types"
)

// Outcome looks up the payoff matrix cell for an ordered pair of
// decisions and returns the two score deltas, caller's first. It is
// deterministic and side-effect free, so round resolution and
// client-side previews share it and always agree.
func Outcome(s *Situation, mine, theirs types.Decision) (int, int, error) {
	if !mine.Valid() {
		return 0, 0, fmt.Errorf("invalid decision: %s", mine)
	}
	if !theirs.Valid() {
		return 0, 0, fmt.Errorf("invalid decision: %s", theirs)
	}
	deltas, ok := s.Outcomes[outcomeKey(mine, theirs)]
	if !ok {
		return 0, 0, fmt.Errorf("situation %s has no outcome for %s/%s", s.ID, mine, theirs)
	}
	return deltas[0], deltas[1], nil
}
