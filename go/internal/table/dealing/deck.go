package dealing

import (
	"math/rand/v2"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// NewDeck returns a standard 52 card deck in suit then rank order.
func NewDeck() []models.Card {
	deck := make([]models.Card, 0, 52)
	for _, suit := range models.Suits {
		for rank := models.RankAce; rank <= models.RankKing; rank++ {
			deck = append(deck, models.Card{Rank: rank, Suit: suit})
		}
	}
	return deck
}

// NewShuffledDeck returns the 51 cards left after the joker is drawn, in an
// order fixed by seed. The same joker and seed always produce the same deck.
func NewShuffledDeck(joker models.Card, seed int64) []models.Card {
	deck := make([]models.Card, 0, 51)
	for _, c := range NewDeck() {
		if c == joker {
			continue
		}
		deck = append(deck, c)
	}
	rng := newRand(seed)
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// DrawJoker picks a joker card for auto-started rounds.
func DrawJoker(seed int64) models.Card {
	deck := NewDeck()
	return deck[newRand(seed).IntN(len(deck))]
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0))
}
