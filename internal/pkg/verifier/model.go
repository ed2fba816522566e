package verifier

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
)

var ErrUnavailable = errors.New("verifier unavailable")

// Verifier checks an auxiliary proof against the public inputs it claims to bind.
// A false verdict is a normal rejection; a non-nil error means no verdict was reached.
type Verifier interface {
	Verify(ctx context.Context, proof []byte, inputs PublicInputs) (bool, error)
}

type Func func(ctx context.Context, proof []byte, inputs PublicInputs) (bool, error)

func (f Func) Verify(ctx context.Context, proof []byte, inputs PublicInputs) (bool, error) {
	return f(ctx, proof, inputs)
}

// PublicInputs is the ordered statement a proof is checked against.
type PublicInputs [][]byte

func Inputs(parts ...string) PublicInputs {
	result := make(PublicInputs, 0, len(parts))
	for _, part := range parts {
		result = append(result, []byte(part))
	}

	return result
}

func (p PublicInputs) Append(parts ...[]byte) PublicInputs {
	result := make(PublicInputs, 0, len(p)+len(parts))
	result = append(result, p...)
	result = append(result, parts...)

	return result
}

func (p PublicInputs) AppendUint(v uint64) PublicInputs {
	return p.Append([]byte(strconv.FormatUint(v, 10)))
}

// Encode length-prefixes every input so distinct statements never share an encoding.
func (p PublicInputs) Encode() []byte {
	size := 0
	for _, input := range p {
		size += 4 + len(input)
	}

	out := make([]byte, 0, size)
	for _, input := range p {
		//nolint:gosec // inputs are bounded by request size
		out = binary.BigEndian.AppendUint32(out, uint32(len(input)))
		out = append(out, input...)
	}

	return out
}

func (p PublicInputs) Hex() []string {
	result := make([]string, 0, len(p))
	for _, input := range p {
		result = append(result, hex.EncodeToString(input))
	}

	return result
}

type remoteRequest struct {
	Proof  string   `json:"proof"`
	Inputs []string `json:"inputs"`
}

type remoteResponse struct {
	Valid bool `json:"valid"`
}
