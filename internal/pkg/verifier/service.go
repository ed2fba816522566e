package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/do/v2"
	"github.com/vreid/janken/internal/pkg/common"
	"go.uber.org/zap"
)

const (
	KindAcceptAll = "accept-all"
	KindHMAC      = "hmac"
	KindRemote    = "remote"

	remoteTimeout = 5 * time.Second
)

var (
	ErrUnknownKind   = errors.New("unknown verifier kind")
	ErrMisconfigured = errors.New("verifier misconfigured")
)

type VerifierService struct {
	Verifier Verifier
}

func NewVerifierService(i do.Injector) (*VerifierService, error) {
	loggerService := do.MustInvoke[*common.LoggerService](i)
	kind := do.MustInvokeNamed[string](i, "verifier")
	secret := do.MustInvokeNamed[string](i, "verifier-secret")
	url := do.MustInvokeNamed[string](i, "verifier-url")
	cacheSize := do.MustInvokeNamed[int](i, "verifier-cache-size")

	v, err := Build(kind, secret, url, cacheSize, loggerService.Logger)
	if err != nil {
		return nil, err
	}

	return &VerifierService{
		Verifier: v,
	}, nil
}

func Build(kind, secret, url string, cacheSize int, logger *zap.Logger) (Verifier, error) {
	var v Verifier

	switch kind {
	case KindAcceptAll:
		logger.Warn("proof verification disabled, every proof is accepted")

		return AcceptAll{}, nil
	case KindHMAC:
		if secret == "" {
			return nil, fmt.Errorf("%w: %s requires a secret", ErrMisconfigured, kind)
		}

		v = NewHMACVerifier([]byte(secret))
	case KindRemote:
		if url == "" {
			return nil, fmt.Errorf("%w: %s requires a url", ErrMisconfigured, kind)
		}

		v = NewRemoteVerifier(url, remoteTimeout, logger.Named("verifier"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if cacheSize <= 0 {
		return v, nil
	}

	return NewCachingVerifier(v, cacheSize)
}
