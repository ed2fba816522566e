package verifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// AcceptAll approves every proof. Only meant for tests and local play.
type AcceptAll struct{}

func (AcceptAll) Verify(context.Context, []byte, PublicInputs) (bool, error) {
	return true, nil
}

// HMACVerifier accepts proofs that are an HMAC-SHA256 of the encoded inputs
// under a secret shared with the proving service.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

func (v *HMACVerifier) Prove(inputs PublicInputs) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(inputs.Encode())

	return h.Sum(nil)
}

func (v *HMACVerifier) Verify(_ context.Context, proof []byte, inputs PublicInputs) (bool, error) {
	return hmac.Equal(proof, v.Prove(inputs)), nil
}

// CachingVerifier memoizes definitive verdicts of another verifier.
type CachingVerifier struct {
	next  Verifier
	cache *lru.Cache

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCachingVerifier(next Verifier, size int) (*CachingVerifier, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create verdict cache: %w", err)
	}

	return &CachingVerifier{
		next:  next,
		cache: cache,
	}, nil
}

func cacheKey(proof []byte, inputs PublicInputs) string {
	h := sha256.New()
	h.Write(proof)
	h.Write(inputs.Encode())

	return hex.EncodeToString(h.Sum(nil))
}

func (v *CachingVerifier) Verify(ctx context.Context, proof []byte, inputs PublicInputs) (bool, error) {
	key := cacheKey(proof, inputs)

	if cached, ok := v.cache.Get(key); ok {
		v.hits.Add(1)

		//nolint:forcetypeassert // only bools are stored
		return cached.(bool), nil
	}

	v.misses.Add(1)

	valid, err := v.next.Verify(ctx, proof, inputs)
	if err != nil {
		return false, err
	}

	v.cache.Add(key, valid)

	return valid, nil
}

func (v *CachingVerifier) Stats() (uint64, uint64) {
	return v.hits.Load(), v.misses.Load()
}

// RemoteVerifier delegates to an HTTP verification service.
type RemoteVerifier struct {
	client *resty.Client
	logger *zap.Logger
}

func NewRemoteVerifier(baseURL string, timeout time.Duration, logger *zap.Logger) *RemoteVerifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &RemoteVerifier{
		client: client,
		logger: logger,
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, proof []byte, inputs PublicInputs) (bool, error) {
	var result remoteResponse

	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(remoteRequest{
			Proof:  hex.EncodeToString(proof),
			Inputs: inputs.Hex(),
		}).
		SetResult(&result).
		Post("/verify")
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.StatusCode() != http.StatusOK {
		v.logger.Warn("verifier returned unexpected status",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()))

		return false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	return result.Valid, nil
}
