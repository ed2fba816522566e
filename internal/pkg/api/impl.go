package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/janken/internal/pkg/common"
	"github.com/vreid/janken/internal/pkg/custody"
	"github.com/vreid/janken/internal/pkg/escrow"
)

type APIService struct {
	Escrow *escrow.EscrowService
	Ledger *custody.LedgerService
	Clock  clock.Clock
}

func NewAPIService(i do.Injector) (*APIService, error) {
	escrowService := do.MustInvoke[*escrow.EscrowService](i)
	ledgerService := do.MustInvoke[*custody.LedgerService](i)
	clockService := do.MustInvoke[*common.ClockService](i)

	result := &APIService{
		Escrow: escrowService,
		Ledger: ledgerService,
		Clock:  clockService.Clock,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Register)

	return result, nil
}

func (s *APIService) Register(e *echo.Echo) {
	apiGroup := e.Group("/api")

	matchesGroup := apiGroup.Group("/matches")

	matchesGroup.POST("", s.CreateMatch)
	matchesGroup.GET("/open", s.ListOpen)
	matchesGroup.GET("/:id", s.GetMatch)
	matchesGroup.POST("/:id/join", s.JoinMatch)
	matchesGroup.POST("/:id/reveal", s.RevealMatch)
	matchesGroup.POST("/:id/forfeit", s.ForfeitMatch)
	matchesGroup.POST("/:id/withdraw", s.WithdrawMatch)

	ledgerGroup := apiGroup.Group("/ledger")

	ledgerGroup.POST("/deposit", s.Deposit)
	ledgerGroup.GET("/:asset/balance", s.Balance)
}

// env reads the clock once per request so every check in the call sees the same time.
func (s *APIService) env(c echo.Context) escrow.Env {
	return escrow.Env{
		Caller: c.Request().Header.Get(HeaderPlayer),
		Now:    s.Clock.Now(),
	}
}

func matchID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid match id")
	}

	return id, nil
}

func decodeHex(field, value string) ([]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s encoding", field))
	}

	return raw, nil
}

var statusByError = []struct {
	err    error
	status int
}{
	{escrow.ErrMatchNotFound, http.StatusNotFound},
	{escrow.ErrWrongState, http.StatusConflict},
	{escrow.ErrAlreadyFinal, http.StatusConflict},
	{escrow.ErrAlreadyPaid, http.StatusConflict},
	{escrow.ErrDeadlineExceeded, http.StatusConflict},
	{escrow.ErrDeadlineNotReached, http.StatusConflict},
	{escrow.ErrUnauthorized, http.StatusForbidden},
	{escrow.ErrSelfJoin, http.StatusForbidden},
	{escrow.ErrCommitmentMismatch, http.StatusUnprocessableEntity},
	{escrow.ErrProofRejected, http.StatusUnprocessableEntity},
	{escrow.ErrInvalidMove, http.StatusUnprocessableEntity},
	{escrow.ErrInvalidCommitment, http.StatusUnprocessableEntity},
	{escrow.ErrInvalidStake, http.StatusUnprocessableEntity},
	{custody.ErrInvalidTransfer, http.StatusUnprocessableEntity},
	{escrow.ErrInsufficientFunds, http.StatusPaymentRequired},
	{escrow.ErrTransferFailed, http.StatusBadGateway},
	{escrow.ErrVerifierUnavailable, http.StatusBadGateway},
}

func httpError(err error) error {
	status := http.StatusInternalServerError

	for _, candidate := range statusByError {
		if errors.Is(err, candidate.err) {
			status = candidate.status

			break
		}
	}

	body := ErrorResponse{Message: err.Error()}

	var matchErr *escrow.MatchError
	if errors.As(err, &matchErr) {
		body.MatchID = matchErr.MatchID
	}

	return echo.NewHTTPError(status, body).SetInternal(err)
}

func (s *APIService) CreateMatch(c echo.Context) error {
	var req CreateMatchRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	proof, err := decodeHex("proof", req.Proof)
	if err != nil {
		return err
	}

	id, err := s.Escrow.Create(c.Request().Context(), s.env(c), escrow.CreateRequest{
		Asset:      req.Asset,
		Amount:     req.Amount,
		Commitment: req.Commitment,
		Proof:      proof,
	})
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, CreateMatchResponse{ID: id})
}

func (s *APIService) ListOpen(c echo.Context) error {
	ids, err := s.Escrow.ListOpen()
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, ids)
}

func (s *APIService) GetMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	m, err := s.Escrow.Get(id)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, m)
}

func (s *APIService) JoinMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	var req JoinMatchRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.Escrow.Join(c.Request().Context(), s.env(c), id, req.Move)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) RevealMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	var req RevealMatchRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	nonce, err := decodeHex("nonce", req.Nonce)
	if err != nil {
		return err
	}

	proof, err := decodeHex("proof", req.Proof)
	if err != nil {
		return err
	}

	err = s.Escrow.RevealAndSettle(c.Request().Context(), s.env(c), id, escrow.RevealRequest{
		Move:  req.Move,
		Nonce: nonce,
		Proof: proof,
	})
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) ForfeitMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	err = s.Escrow.Forfeit(c.Request().Context(), s.env(c), id)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) WithdrawMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	err = s.Escrow.Withdraw(c.Request().Context(), s.env(c), id)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) Deposit(c echo.Context) error {
	var req DepositRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	party := c.Request().Header.Get(HeaderPlayer)

	err = s.Ledger.Deposit(c.Request().Context(), party, req.Asset, req.Amount)
	if err != nil {
		return httpError(err)
	}

	return s.balance(c, party, req.Asset)
}

func (s *APIService) Balance(c echo.Context) error {
	return s.balance(c, c.Request().Header.Get(HeaderPlayer), c.Param("asset"))
}

func (s *APIService) balance(c echo.Context, party, asset string) error {
	balance, err := s.Ledger.Balance(party, asset)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, BalanceResponse{
		Party:   party,
		Asset:   asset,
		Balance: balance,
	})
}
