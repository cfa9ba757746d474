package credentials

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNoCredential is returned by a Store that holds no token yet.
	ErrNoCredential = errors.New("no cached credential")
	ErrRenewal      = errors.New("credential renewal failed")
)

// Store persists the bearer token between runs.
type Store interface {
	Load() (string, error)
	Store(token string) error
}

// Renewer obtains a fresh bearer token out of band. It may be slow or interactive.
type Renewer interface {
	Renew(ctx context.Context) (string, error)
}

type RenewerFunc func(ctx context.Context) (string, error)

func (f RenewerFunc) Renew(ctx context.Context) (string, error) {
	return f(ctx)
}
