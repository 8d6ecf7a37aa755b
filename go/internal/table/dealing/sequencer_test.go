package dealing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

func cards(ss ...string) []models.Card {
	out := make([]models.Card, len(ss))
	for i, s := range ss {
		out[i] = models.MustParseCard(s)
	}
	return out
}

func dealAll(t *testing.T, s *Sequencer) []models.DealtCard {
	t.Helper()
	for {
		dc, err := s.Next()
		require.NoError(t, err)
		if dc.IsWinningCard {
			return s.Dealt()
		}
	}
}

func TestSecondCardMatchesJoker(t *testing.T) {
	s, err := NewSequencer(models.MustParseCard("7♠"), models.SideAndar, cards("5♦", "7♠", "9♣"))
	require.NoError(t, err)

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, models.SideAndar, first.Side)
	assert.Equal(t, 1, first.SequenceIndex)
	assert.False(t, first.IsWinningCard)

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, models.SideBahar, second.Side)
	assert.Equal(t, 2, second.SequenceIndex)
	assert.True(t, second.IsWinningCard)

	winner, ok := s.Winner()
	require.True(t, ok)
	assert.Equal(t, models.SideBahar, winner.Side)

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrResolved)
	assert.Equal(t, cards("9♣"), s.Remaining())
}

func TestStartingSideBahar(t *testing.T) {
	s, err := NewSequencer(models.MustParseCard("K♥"), models.SideBahar, cards("2♦", "3♦", "K♣"))
	require.NoError(t, err)
	dealt := dealAll(t, s)
	require.Len(t, dealt, 3)
	assert.Equal(t, []models.Side{models.SideBahar, models.SideAndar, models.SideBahar},
		[]models.Side{dealt[0].Side, dealt[1].Side, dealt[2].Side})
}

func TestExhaustionIsAFault(t *testing.T) {
	s, err := NewSequencer(models.MustParseCard("A♠"), models.SideAndar, cards("2♦", "3♦"))
	require.NoError(t, err)
	_, _ = s.Next()
	_, _ = s.Next()
	_, err = s.Next()
	assert.ErrorIs(t, err, ErrDeckExhausted)
}

func TestShuffledDeckIsDeterministic(t *testing.T) {
	joker := models.MustParseCard("7♠")
	a := NewShuffledDeck(joker, 42)
	b := NewShuffledDeck(joker, 42)
	assert.Equal(t, a, b)
	assert.Len(t, a, 51)
	assert.NotContains(t, a, joker)

	s1, err := NewSequencer(joker, models.SideAndar, a)
	require.NoError(t, err)
	s2, err := NewSequencer(joker, models.SideAndar, b)
	require.NoError(t, err)
	assert.Equal(t, dealAll(t, s1), dealAll(t, s2))
}

func TestExactlyOneWinningCardWithJokerRank(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		joker := DrawJoker(seed)
		s, err := NewSequencer(joker, models.SideAndar, NewShuffledDeck(joker, seed))
		require.NoError(t, err)

		dealt := dealAll(t, s)
		winners := 0
		for i, dc := range dealt {
			assert.Equal(t, i+1, dc.SequenceIndex)
			if dc.IsWinningCard {
				winners++
				assert.Equal(t, joker.Rank, dc.Card.Rank)
			}
		}
		assert.Equal(t, 1, winners, "seed %d", seed)
	}
}

func TestResume(t *testing.T) {
	joker := models.MustParseCard("Q♦")
	seq := cards("2♣", "3♣", "4♣", "Q♠")
	s, err := NewSequencer(joker, models.SideAndar, seq)
	require.NoError(t, err)
	_, _ = s.Next()
	_, _ = s.Next()

	r, err := Resume(joker, models.SideAndar, s.Dealt(), s.Remaining())
	require.NoError(t, err)
	assert.Equal(t, s.Dealt(), r.Dealt())

	next, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, next.SequenceIndex)
	assert.Equal(t, models.SideAndar, next.Side)
}

func TestNewSequencerValidation(t *testing.T) {
	_, err := NewSequencer(models.Card{}, models.SideAndar, cards("2♣"))
	assert.Error(t, err)
	_, err = NewSequencer(models.MustParseCard("2♠"), "up", cards("2♣"))
	assert.Error(t, err)
	_, err = NewSequencer(models.MustParseCard("2♠"), models.SideAndar, nil)
	assert.Error(t, err)
}
