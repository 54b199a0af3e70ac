package game

import (
	"fmt"
	"math/rand"

	"github.com/cbodonnell/trustecho/pkg/game/constants"
)

// Situation is a named scenario with a 2x2 payoff matrix keyed by the
// ordered pair of both players' decisions ("TT", "TB", "BT", "BB").
// The matrix is not required to be symmetric.
type Situation struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	Outcomes map[string][2]int `json:"outcomes"`
}

// DefaultSituations is the built-in situation catalog.
var DefaultSituations = []Situation{
	{
		ID:    "S1",
		Title: "The Project Credit",
		Text:  "You and the other player worked together on a project. Only one person can take full credit for the success.",
		Outcomes: map[string][2]int{
			"TT": {3, 3},
			"TB": {-2, 5},
			"BT": {5, -2},
			"BB": {-1, -1},
		},
	},
	{
		ID:    "S2",
		Title: "The Last Slice",
		Text:  "There's one slice of pizza left. You can either split it fairly or try to take the whole thing.",
		Outcomes: map[string][2]int{
			"TT": {2, 2},
			"TB": {-1, 4},
			"BT": {4, -1},
			"BB": {0, 0},
		},
	},
	{
		ID:    "S3",
		Title: "The Secret",
		Text:  "You both know each other's embarrassing secret. You can keep it safe or expose it to others.",
		Outcomes: map[string][2]int{
			"TT": {4, 4},
			"TB": {-3, 3},
			"BT": {3, -3},
			"BB": {-2, -2},
		},
	},
	{
		ID:    "S4",
		Title: "The Lifeboat",
		Text:  "Resources are limited on the lifeboat. You can share supplies equally or hoard them for yourself.",
		Outcomes: map[string][2]int{
			"TT": {3, 3},
			"TB": {-2, 5},
			"BT": {5, -2},
			"BB": {1, 1},
		},
	},
	{
		ID:    "S5",
		Title: "The Alibi",
		Text:  "You both need an alibi for last night. You can cover for each other or tell the truth about where you really were.",
		Outcomes: map[string][2]int{
			"TT": {4, 4},
			"TB": {-3, 2},
			"BT": {2, -3},
			"BB": {-1, -1},
		},
	},
}

// SituationPool selects situations for new rounds without repeats
// within a session.
type SituationPool struct {
	situations []Situation
}

// NewSituationPool creates a pool from the given catalog. The catalog
// must hold at least TotalRounds situations so that a full session
// never needs to repeat one.
func NewSituationPool(situations []Situation) (*SituationPool, error) {
	if len(situations) < constants.TotalRounds {
		return nil, fmt.Errorf("situation catalog has %d entries, need at least %d", len(situations), constants.TotalRounds)
	}
	return &SituationPool{situations: situations}, nil
}

// NewDefaultSituationPool creates a pool over the built-in catalog.
func NewDefaultSituationPool() *SituationPool {
	pool, err := NewSituationPool(DefaultSituations)
	if err != nil {
		// The built-in catalog always satisfies the size precondition.
		panic(err)
	}
	return pool
}

// Pick returns a situation whose ID is not in excludeIDs, chosen
// uniformly at random among the remaining candidates. If every
// situation is excluded it falls back to an unrestricted pick from the
// full catalog.
func (p *SituationPool) Pick(excludeIDs []string) Situation {
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var available []Situation
	for _, s := range p.situations {
		if !excluded[s.ID] {
			available = append(available, s)
		}
	}

	if len(available) == 0 {
		return p.situations[rand.Intn(len(p.situations))]
	}
	return available[rand.Intn(len(available))]
}

// ByID returns the situation with the given ID.
func (p *SituationPool) ByID(id string) (*Situation, error) {
	for i := range p.situations {
		if p.situations[i].ID == id {
			return &p.situations[i], nil
		}
	}
	return nil, fmt.Errorf("unknown situation: %s", id)
}

// Situations returns the full catalog.
func (p *SituationPool) Situations() []Situation {
	return p.situations
}
