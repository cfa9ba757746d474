package main

import (
	"context"
	"io"

	"github.com/Laperavee/Cielo-API/cielo/conf"
	"github.com/Laperavee/Cielo-API/cielo/credentials"
	"github.com/Laperavee/Cielo-API/cielo/relations"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore returns the configured token store and a closer releasing it.
func openStore(c conf.Conf) (credentials.Store, io.Closer, error) {
	switch c.TokenStore {
	case "", "file":
		return credentials.NewFileStore(c.TokenFile), nopCloser{}, nil
	case "bolt":
		store, err := credentials.NewBoltStore(c.TokenDB, 0o600)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, errors.Errorf("unknown token store %q", c.TokenStore)
	}
}

// newRenewer returns the configured renewal command, or a renewer that always fails when
// none is configured so that an expired token ends in a logged fetch failure.
func newRenewer(c conf.Conf) (credentials.Renewer, error) {
	if len(c.RenewCommand) == 0 {
		return credentials.RenewerFunc(func(context.Context) (string, error) {
			return "", errors.Wrap(credentials.ErrRenewal, "no renew_command configured")
		}), nil
	}
	return credentials.NewCommandRenewer(c.RenewCommand)
}

// session is the credential manager and relations client shared by the commands.
type session struct {
	manager *credentials.Manager
	client  *relations.Client
	closer  io.Closer
}

func newSession(c conf.Conf, logger zerolog.Logger) (*session, error) {
	store, closer, err := openStore(c)
	if err != nil {
		return nil, err
	}
	renewer, err := newRenewer(c)
	if err != nil {
		closer.Close()
		return nil, err
	}

	manager := credentials.NewManager(store, renewer, logger)
	if err := manager.Load(); err != nil {
		closer.Close()
		return nil, err
	}

	client := relations.NewClient(c.APIURL, manager, logger,
		relations.WithTimeout(c.RequestTimeout),
		relations.WithRateLimit(c.RequestsPerSecond),
		relations.WithUntrackableMarker(c.UntrackableMarker),
	)

	return &session{manager: manager, client: client, closer: closer}, nil
}

func (s *session) Close() error {
	return s.closer.Close()
}
