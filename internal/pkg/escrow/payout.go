package escrow

import (
	"fmt"

	"github.com/vreid/janken/internal/pkg/game"
	"github.com/vreid/janken/internal/pkg/registry"
)

// payouts decides who receives what once a match settles. The result is
// stored on the match and never recomputed.
func payouts(m *registry.Match, resolution registry.Resolution, outcome game.Outcome) (*string, []registry.Payout, error) {
	initiator := m.Initiator
	opponent := m.Opponent
	pot := 2 * m.Amount

	switch resolution {
	case registry.Cancelled:
		return &initiator, []registry.Payout{{To: initiator, Amount: m.Amount}}, nil
	case registry.TimedOut:
		return &opponent, []registry.Payout{{To: opponent, Amount: pot}}, nil
	case registry.Revealed:
		switch outcome {
		case game.InitiatorWins:
			return &initiator, []registry.Payout{{To: initiator, Amount: pot}}, nil
		case game.OpponentWins:
			return &opponent, []registry.Payout{{To: opponent, Amount: pot}}, nil
		case game.Tie:
			return nil, []registry.Payout{
				{To: initiator, Amount: m.Amount},
				{To: opponent, Amount: m.Amount},
			}, nil
		}
	case registry.Unresolved:
	}

	return nil, nil, fmt.Errorf("no payout rule for resolution %q outcome %s", resolution, outcome)
}

func settle(m *registry.Match, env Env, resolution registry.Resolution, outcome game.Outcome) error {
	winner, legs, err := payouts(m, resolution, outcome)
	if err != nil {
		return err
	}

	now := env.Now

	m.State = registry.Settled
	m.Resolution = resolution
	m.Winner = winner
	m.Payouts = legs
	m.SettledAt = &now

	return nil
}

func totalPayouts(m *registry.Match) uint64 {
	var total uint64

	for _, payout := range m.Payouts {
		total += payout.Amount
	}

	return total
}
