package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vreid/janken/internal/pkg/game"
)

type MatchState uint8

const (
	OpenForOpponent MatchState = iota
	AwaitingReveal
	Settled
)

var stateNames = map[MatchState]string{
	OpenForOpponent: "open",
	AwaitingReveal:  "awaiting_reveal",
	Settled:         "settled",
}

func (s MatchState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s MatchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MatchState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state

			return nil
		}
	}

	return fmt.Errorf("unknown match state %q", text)
}

// Resolution records how a match reached Settled.
type Resolution string

const (
	Unresolved Resolution = ""
	Revealed   Resolution = "revealed"
	Cancelled  Resolution = "cancelled"
	TimedOut   Resolution = "timed_out"
)

type Payout struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Paid   bool   `json:"paid"`
}

type Match struct {
	ID uint64 `json:"id"`

	Initiator string `json:"initiator"`
	Opponent  string `json:"opponent,omitempty"`

	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`

	Commitment game.Commitment `json:"commitment"`

	InitiatorMove *game.Move `json:"initiator_move,omitempty"`
	OpponentMove  *game.Move `json:"opponent_move,omitempty"`

	State          MatchState `json:"state"`
	OpponentStaked bool       `json:"opponent_staked"`
	RevealDeadline *time.Time `json:"reveal_deadline,omitempty"`

	Winner     *string    `json:"winner,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`

	Deposited    uint64   `json:"deposited"`
	Payouts      []Payout `json:"payouts,omitempty"`
	PayoutIssued bool     `json:"payout_issued"`

	CreatedAt time.Time  `json:"created_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func (m *Match) Clone() *Match {
	data, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("match %d is not serializable: %v", m.ID, err))
	}

	var result Match

	err = json.Unmarshal(data, &result)
	if err != nil {
		panic(fmt.Sprintf("match %d is not deserializable: %v", m.ID, err))
	}

	return &result
}

func (m *Match) PaidOut() uint64 {
	var total uint64

	for _, payout := range m.Payouts {
		if payout.Paid {
			total += payout.Amount
		}
	}

	return total
}
