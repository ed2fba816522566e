package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"github.com/vreid/janken/internal/pkg/escrow"
	"github.com/vreid/janken/internal/pkg/game"
	"github.com/vreid/janken/internal/pkg/verifier"
)

func run(t *testing.T, args ...string) []byte {
	t.Helper()

	var out bytes.Buffer

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:     "janken",
		Writer:   &out,
		Commands: []*cli.Command{commitCommand(), revealProofCommand()},
	}

	require.NoError(t, cmd.Run(context.Background(), append([]string{"janken"}, args...)))

	return out.Bytes()
}

func TestCommitCommand(t *testing.T) {
	t.Parallel()

	var out commitOutput

	require.NoError(t, json.Unmarshal(run(t, "commit", "--move", "paper", "--nonce", "0102"), &out))

	assert.Equal(t, game.Paper, out.Move)
	assert.Equal(t, "0102", out.Nonce)
	assert.Equal(t, game.Commit(game.Paper, []byte{1, 2}), out.Commitment)
	assert.Empty(t, out.Proof)
}

func TestCommitCommandWithProof(t *testing.T) {
	t.Parallel()

	var out commitOutput

	require.NoError(t, json.Unmarshal(run(t,
		"commit", "--move", "rock", "--secret", "s3cret",
		"--player", "alice", "--asset", "HIVE", "--amount", "10"), &out))

	nonce, err := hex.DecodeString(out.Nonce)
	require.NoError(t, err)
	assert.Len(t, nonce, 32)

	proof, err := hex.DecodeString(out.Proof)
	require.NoError(t, err)

	valid, err := verifier.NewHMACVerifier([]byte("s3cret")).
		Verify(context.Background(), proof, escrow.CreateInputs("alice", "HIVE", 10, out.Commitment))
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRevealProofCommand(t *testing.T) {
	t.Parallel()

	var out revealOutput

	require.NoError(t, json.Unmarshal(run(t,
		"reveal-proof", "--id", "7", "--move", "scissors", "--nonce", "abcd", "--secret", "s3cret"), &out))

	proof, err := hex.DecodeString(out.Proof)
	require.NoError(t, err)

	nonce := []byte{0xab, 0xcd}
	inputs := escrow.RevealInputs(7, game.Commit(game.Scissors, nonce), game.Scissors, nonce)

	valid, err := verifier.NewHMACVerifier([]byte("s3cret")).Verify(context.Background(), proof, inputs)
	require.NoError(t, err)
	assert.True(t, valid)
}
