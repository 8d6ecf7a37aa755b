package client

import (
	"sort"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// reorderBuffer releases dealt cards in sequence index order. Cards that
// arrive early wait until the gap before them is filled; duplicates are dropped.
type reorderBuffer struct {
	next    int
	pending map[int]models.DealtCard
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{next: 1, pending: make(map[int]models.DealtCard)}
}

// Push adds dc and returns the cards that are now ready, in order.
func (b *reorderBuffer) Push(dc models.DealtCard) []models.DealtCard {
	if dc.SequenceIndex < b.next {
		return nil
	}
	b.pending[dc.SequenceIndex] = dc

	var ready []models.DealtCard
	for {
		card, ok := b.pending[b.next]
		if !ok {
			return ready
		}
		delete(b.pending, b.next)
		ready = append(ready, card)
		b.next++
	}
}

// Load replaces the buffer's state with an authoritative list of dealt cards
// and returns them in order.
func (b *reorderBuffer) Load(cards []models.DealtCard) []models.DealtCard {
	b.Reset()
	sorted := make([]models.DealtCard, len(cards))
	copy(sorted, cards)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SequenceIndex < sorted[j].SequenceIndex })

	var out []models.DealtCard
	for _, dc := range sorted {
		out = append(out, b.Push(dc)...)
	}
	return out
}

// Waiting reports how many cards are held back behind a gap.
func (b *reorderBuffer) Waiting() int {
	return len(b.pending)
}

func (b *reorderBuffer) Reset() {
	b.next = 1
	b.pending = make(map[int]models.DealtCard)
}
