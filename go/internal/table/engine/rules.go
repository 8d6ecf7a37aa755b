package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/ledger"
)

// Rules configure how a table runs its rounds.
type Rules struct {
	BettingDuration  time.Duration
	Limits           ledger.Limits
	PayoutMultiplier decimal.Decimal
	// Round1Cards is how many cards are dealt before round 2 is announced.
	Round1Cards   int
	Round2Enabled bool
	Round2Delay   time.Duration
	ResetDelay    time.Duration
	// DealInterval spaces card_dealt events. Zero deals every card at once.
	DealInterval time.Duration
	StartingSide models.Side
	AutoStart    bool
}

func DefaultRules() Rules {
	return Rules{
		BettingDuration: 30 * time.Second,
		Limits: ledger.Limits{
			MinBet: decimal.NewFromInt(10),
			MaxBet: decimal.NewFromInt(100000),
		},
		PayoutMultiplier: decimal.NewFromInt(2),
		Round1Cards:      2,
		Round2Enabled:    true,
		Round2Delay:      5 * time.Second,
		ResetDelay:       5 * time.Second,
		DealInterval:     time.Second,
		StartingSide:     models.SideAndar,
	}
}

func (r Rules) Validate() error {
	if r.BettingDuration < time.Second {
		return fmt.Errorf("betting duration must be at least 1s, got %s", r.BettingDuration)
	}
	if !r.PayoutMultiplier.IsPositive() {
		return fmt.Errorf("payout multiplier must be positive")
	}
	if r.Round2Enabled && r.Round1Cards < 1 {
		return fmt.Errorf("round 1 must deal at least one card")
	}
	if !r.StartingSide.Valid() {
		return fmt.Errorf("invalid starting side %q", r.StartingSide)
	}
	if !r.Limits.MaxBet.IsZero() && r.Limits.MinBet.GreaterThan(r.Limits.MaxBet) {
		return fmt.Errorf("min bet %s exceeds max bet %s", r.Limits.MinBet, r.Limits.MaxBet)
	}
	if r.Round2Delay < 0 || r.ResetDelay < 0 || r.DealInterval < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}
