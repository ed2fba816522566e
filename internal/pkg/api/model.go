package api

import "github.com/vreid/janken/internal/pkg/game"

const HeaderPlayer = "X-Player"

type CreateMatchRequest struct {
	Asset      string          `json:"asset"`
	Amount     uint64          `json:"amount"`
	Commitment game.Commitment `json:"commitment"`
	Proof      string          `json:"proof"`
}

type CreateMatchResponse struct {
	ID uint64 `json:"id"`
}

type JoinMatchRequest struct {
	Move game.Move `json:"move"`
}

type RevealMatchRequest struct {
	Move  game.Move `json:"move"`
	Nonce string    `json:"nonce"`
	Proof string    `json:"proof"`
}

type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type BalanceResponse struct {
	Party   string `json:"party"`
	Asset   string `json:"asset"`
	Balance uint64 `json:"balance"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	MatchID uint64 `json:"match_id,omitempty"`
}
