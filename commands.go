package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/vreid/janken/internal/pkg/escrow"
	"github.com/vreid/janken/internal/pkg/game"
	"github.com/vreid/janken/internal/pkg/verifier"
)

type commitOutput struct {
	Move       game.Move       `json:"move"`
	Nonce      string          `json:"nonce"`
	Commitment game.Commitment `json:"commitment"`
	Proof      string          `json:"proof,omitempty"`
}

type revealOutput struct {
	Move  game.Move `json:"move"`
	Nonce string    `json:"nonce"`
	Proof string    `json:"proof"`
}

func printJSON(cmd *cli.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, string(data))
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func moveAndNonce(cmd *cli.Command) (game.Move, []byte, error) {
	move, err := game.ParseMove(cmd.String("move"))
	if err != nil {
		return 0, nil, err
	}

	if raw := cmd.String("nonce"); raw != "" {
		nonce, err := hex.DecodeString(raw)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid nonce: %w", err)
		}

		return move, nonce, nil
	}

	nonce, err := game.NewNonce()
	if err != nil {
		return 0, nil, err
	}

	return move, nonce, nil
}

// commitCommand prints the commitment a client sends when opening a match,
// plus an HMAC proof when a prover secret is given.
func commitCommand() *cli.Command {
	//nolint:exhaustruct
	return &cli.Command{
		Name:  "commit",
		Usage: "compute a commitment for a hidden move",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "move", Required: true},
			&cli.StringFlag{Name: "nonce", Usage: "hex nonce, random when empty"},
			&cli.StringFlag{Name: "secret", Sources: cli.EnvVars("JANKEN_VERIFIER_SECRET")},
			&cli.StringFlag{Name: "player"},
			&cli.StringFlag{Name: "asset"},
			&cli.Uint64Flag{Name: "amount"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			move, nonce, err := moveAndNonce(cmd)
			if err != nil {
				return err
			}

			commitment := game.Commit(move, nonce)
			out := commitOutput{
				Move:       move,
				Nonce:      hex.EncodeToString(nonce),
				Commitment: commitment,
			}

			if secret := cmd.String("secret"); secret != "" {
				inputs := escrow.CreateInputs(cmd.String("player"), cmd.String("asset"), cmd.Uint64("amount"), commitment)
				out.Proof = hex.EncodeToString(verifier.NewHMACVerifier([]byte(secret)).Prove(inputs))
			}

			return printJSON(cmd, out)
		},
	}
}

func revealProofCommand() *cli.Command {
	//nolint:exhaustruct
	return &cli.Command{
		Name:  "reveal-proof",
		Usage: "compute the HMAC proof for revealing a committed move",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "id", Required: true},
			&cli.StringFlag{Name: "move", Required: true},
			&cli.StringFlag{Name: "nonce", Required: true},
			&cli.StringFlag{Name: "secret", Required: true, Sources: cli.EnvVars("JANKEN_VERIFIER_SECRET")},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			move, nonce, err := moveAndNonce(cmd)
			if err != nil {
				return err
			}

			inputs := escrow.RevealInputs(cmd.Uint64("id"), game.Commit(move, nonce), move, nonce)
			proof := verifier.NewHMACVerifier([]byte(cmd.String("secret"))).Prove(inputs)

			return printJSON(cmd, revealOutput{
				Move:  move,
				Nonce: hex.EncodeToString(nonce),
				Proof: hex.EncodeToString(proof),
			})
		},
	}
}
