package game

import (
	"math/rand"

	"github.com/cbodonnell/trustecho/pkg/game/types"
)

var reflections = map[string][]string{
	"TT": {
		"Both chose the path of trust.",
		"They mirrored your cooperation.",
		"Mutual trust. A rare moment.",
	},
	"TB": {
		"You trusted. They didn't.",
		"Your trust was not returned.",
		"They chose self-interest over your faith.",
	},
	"BT": {
		"They trusted you. You didn't reciprocate.",
		"Their trust met your betrayal.",
		"You chose gain over their faith in you.",
	},
	"BB": {
		"Neither trusted the other.",
		"Mutual suspicion. Both chose self-preservation.",
		"Two betrayals cancel out.",
	},
}

// Reflection returns a flavor line for a resolved round, picked at
// random from the lines matching the ordered decision pair.
func Reflection(mine, theirs types.Decision) string {
	options := reflections[outcomeKey(mine, theirs)]
	return options[rand.Intn(len(options))]
}
