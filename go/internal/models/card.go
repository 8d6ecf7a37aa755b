package models

import (
	"fmt"
	"strings"
)

// Suit of a playing card.
type Suit string

const (
	SuitSpades   Suit = "S"
	SuitHearts   Suit = "H"
	SuitDiamonds Suit = "D"
	SuitClubs    Suit = "C"
)

// Suits lists every suit in deck order.
var Suits = []Suit{SuitSpades, SuitHearts, SuitDiamonds, SuitClubs}

var suitSymbols = map[Suit]string{
	SuitSpades:   "♠",
	SuitHearts:   "♥",
	SuitDiamonds: "♦",
	SuitClubs:    "♣",
}

// Rank of a playing card, 1 (ace) through 13 (king).
type Rank int

const (
	RankAce   Rank = 1
	RankJack  Rank = 11
	RankQueen Rank = 12
	RankKing  Rank = 13
)

func (r Rank) String() string {
	switch r {
	case RankAce:
		return "A"
	case RankJack:
		return "J"
	case RankQueen:
		return "Q"
	case RankKing:
		return "K"
	default:
		return fmt.Sprintf("%d", int(r))
	}
}

// Card is a single playing card. On the wire it is encoded as text, e.g. "7♠".
type Card struct {
	Rank Rank
	Suit Suit
}

// IsZero reports whether the card is unset.
func (c Card) IsZero() bool {
	return c.Rank == 0 && c.Suit == ""
}

// Matches reports whether both cards share a rank. Suit is irrelevant in Andar Bahar.
func (c Card) Matches(other Card) bool {
	return c.Rank == other.Rank
}

func (c Card) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Rank.String() + suitSymbols[c.Suit]
}

func (c Card) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Card) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = Card{}
		return nil
	}
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard parses "7♠", "7S", "10h", "Qd" and similar forms.
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Card{}, fmt.Errorf("empty card")
	}

	var suit Suit
	var rankPart string
	for sym, symbol := range suitSymbols {
		if strings.HasSuffix(s, symbol) {
			suit = sym
			rankPart = strings.TrimSuffix(s, symbol)
			break
		}
	}
	if suit == "" {
		last := strings.ToUpper(s[len(s)-1:])
		switch Suit(last) {
		case SuitSpades, SuitHearts, SuitDiamonds, SuitClubs:
			suit = Suit(last)
			rankPart = s[:len(s)-1]
		default:
			return Card{}, fmt.Errorf("invalid card %q: unknown suit", s)
		}
	}

	rank, err := parseRank(strings.ToUpper(rankPart))
	if err != nil {
		return Card{}, fmt.Errorf("invalid card %q: %w", s, err)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

func parseRank(s string) (Rank, error) {
	switch s {
	case "A", "1":
		return RankAce, nil
	case "J":
		return RankJack, nil
	case "Q":
		return RankQueen, nil
	case "K":
		return RankKing, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 2 || n > 10 || fmt.Sprintf("%d", n) != s {
		return 0, fmt.Errorf("unknown rank %q", s)
	}
	return Rank(n), nil
}

// MustParseCard is ParseCard for literals known to be valid.
func MustParseCard(s string) Card {
	c, err := ParseCard(s)
	if err != nil {
		panic(err)
	}
	return c
}
