package game

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

const NonceSize = 32

// beats maps each move to the move it dominates.
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// Beats reports whether a dominates b.
func Beats(a, b Move) bool {
	return a.Valid() && b.Valid() && beats[a] == b
}

func Decide(initiator, opponent Move) (Outcome, error) {
	if !initiator.Valid() || !opponent.Valid() {
		return Tie, fmt.Errorf("%w: %d vs %d", ErrInvalidMove, uint8(initiator), uint8(opponent))
	}

	switch {
	case initiator == opponent:
		return Tie, nil
	case Beats(initiator, opponent):
		return InitiatorWins, nil
	default:
		return OpponentWins, nil
	}
}

// Commit hashes the move byte followed by the nonce.
func Commit(move Move, nonce []byte) Commitment {
	h := sha256.New()
	h.Write([]byte{byte(move)})
	h.Write(nonce)

	var c Commitment

	copy(c[:], h.Sum(nil))

	return c
}

func VerifyCommitment(c Commitment, move Move, nonce []byte) bool {
	computed := Commit(move, nonce)

	return subtle.ConstantTimeCompare(computed[:], c[:]) == 1
}

func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)

	_, err := rand.Read(nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return nonce, nil
}
