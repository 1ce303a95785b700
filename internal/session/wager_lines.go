package session

import (
	"math/rand"

	"github.com/DoyleJ11/betting-loadtest/internal/protocol"
)

// Player, banker, tie.
var BetAreas = []int{1, 2, 3}

var Stakes = []int{100, 200, 300}

// WagerPicker chooses the single wager line sent for a round.
type WagerPicker interface {
	Pick() protocol.WagerLine
}

type randomPicker struct {
	rng *rand.Rand
}

// NewRandomPicker draws uniformly from BetAreas x Stakes.
func NewRandomPicker(seed int64) WagerPicker {
	return &randomPicker{rng: rand.New(rand.NewSource(seed))}
}

func (p *randomPicker) Pick() protocol.WagerLine {
	return protocol.WagerLine{
		BetArea:     BetAreas[p.rng.Intn(len(BetAreas))],
		AddBetMoney: Stakes[p.rng.Intn(len(Stakes))],
	}
}
