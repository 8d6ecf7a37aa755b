package dealing

import (
	"errors"
	"fmt"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

var (
	// ErrDeckExhausted means every card was dealt without matching the joker.
	ErrDeckExhausted = errors.New("deck exhausted without a match")
	ErrResolved      = errors.New("winner already determined")
)

// Sequencer deals a fixed card order to alternating piles until a card
// matches the joker's rank. The order is decided before the first card is
// dealt, so a joker and a sequence always yield the same outcome.
type Sequencer struct {
	joker     models.Card
	startSide models.Side
	cards     []models.Card
	next      int
	dealt     []models.DealtCard
	winner    *models.DealtCard
}

// NewSequencer creates a sequencer over cards, dealing first to startSide.
func NewSequencer(joker models.Card, startSide models.Side, cards []models.Card) (*Sequencer, error) {
	if joker.IsZero() {
		return nil, fmt.Errorf("joker card is required")
	}
	if !startSide.Valid() {
		return nil, fmt.Errorf("invalid starting side %q", startSide)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("card sequence is empty")
	}
	seq := make([]models.Card, len(cards))
	copy(seq, cards)
	return &Sequencer{
		joker:     joker,
		startSide: startSide,
		cards:     seq,
	}, nil
}

// Resume rebuilds a sequencer from cards already dealt and the cards left to deal.
func Resume(joker models.Card, startSide models.Side, dealt []models.DealtCard, remaining []models.Card) (*Sequencer, error) {
	all := make([]models.Card, 0, len(dealt)+len(remaining))
	for _, dc := range dealt {
		all = append(all, dc.Card)
	}
	all = append(all, remaining...)

	s, err := NewSequencer(joker, startSide, all)
	if err != nil {
		return nil, err
	}
	for i := range dealt {
		if _, err := s.Next(); err != nil {
			return nil, fmt.Errorf("failed to replay card %d: %w", i+1, err)
		}
	}
	return s, nil
}

// Next deals the next card. Sequence indexes start at 1.
func (s *Sequencer) Next() (models.DealtCard, error) {
	if s.winner != nil {
		return models.DealtCard{}, ErrResolved
	}
	if s.next >= len(s.cards) {
		return models.DealtCard{}, ErrDeckExhausted
	}

	side := s.startSide
	if s.next%2 == 1 {
		side = side.Opposite()
	}
	dc := models.DealtCard{
		Side:          side,
		Card:          s.cards[s.next],
		SequenceIndex: s.next + 1,
		IsWinningCard: s.cards[s.next].Matches(s.joker),
	}
	s.next++
	s.dealt = append(s.dealt, dc)
	if dc.IsWinningCard {
		w := dc
		s.winner = &w
	}
	return dc, nil
}

// Winner returns the winning card once one has been dealt.
func (s *Sequencer) Winner() (models.DealtCard, bool) {
	if s.winner == nil {
		return models.DealtCard{}, false
	}
	return *s.winner, true
}

// Dealt returns a copy of the cards dealt so far.
func (s *Sequencer) Dealt() []models.DealtCard {
	out := make([]models.DealtCard, len(s.dealt))
	copy(out, s.dealt)
	return out
}

// Remaining returns a copy of the cards not yet dealt.
func (s *Sequencer) Remaining() []models.Card {
	out := make([]models.Card, len(s.cards)-s.next)
	copy(out, s.cards[s.next:])
	return out
}

func (s *Sequencer) Joker() models.Card {
	return s.joker
}
