package game

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidMove       = errors.New("invalid move")
	ErrInvalidCommitment = errors.New("invalid commitment")
)

// Move is one of the three hand shapes. The zero value is not a valid move.
type Move uint8

const (
	Rock     Move = 1
	Paper    Move = 2
	Scissors Move = 3
)

var moveNames = map[Move]string{
	Rock:     "rock",
	Paper:    "paper",
	Scissors: "scissors",
}

func (m Move) Valid() bool {
	_, ok := moveNames[m]

	return ok
}

func (m Move) String() string {
	if name, ok := moveNames[m]; ok {
		return name
	}

	return fmt.Sprintf("move(%d)", uint8(m))
}

func ParseMove(s string) (Move, error) {
	for move, name := range moveNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return move, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidMove, s)
}

func (m Move) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMove, uint8(m))
	}

	return []byte(m.String()), nil
}

func (m *Move) UnmarshalText(text []byte) error {
	parsed, err := ParseMove(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}

// Outcome is the result of comparing the initiator's move against the opponent's.
type Outcome uint8

const (
	Tie Outcome = iota
	InitiatorWins
	OpponentWins
)

func (o Outcome) String() string {
	switch o {
	case Tie:
		return "tie"
	case InitiatorWins:
		return "initiator"
	case OpponentWins:
		return "opponent"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Commitment is the SHA-256 digest binding a move to a secret nonce.
type Commitment [32]byte

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

func ParseCommitment(s string) (Commitment, error) {
	var c Commitment

	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalidCommitment, err)
	}

	if len(raw) != len(c) {
		return c, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidCommitment, len(c), len(raw))
	}

	copy(c[:], raw)

	return c, nil
}

func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Commitment) UnmarshalText(text []byte) error {
	parsed, err := ParseCommitment(string(text))
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}
