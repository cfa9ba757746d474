package credentials

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Manager owns the current bearer token. Renewals are serialized: callers that hit an
// authentication failure with the same stale token share a single renewal.
type Manager struct {
	store   Store
	renewer Renewer
	logger  zerolog.Logger

	mu    sync.RWMutex
	token string
	group singleflight.Group
}

func NewManager(store Store, renewer Renewer, logger zerolog.Logger) *Manager {
	initPrometheusMetrics()

	return &Manager{
		store:   store,
		renewer: renewer,
		logger:  logger.With().Str("component", "credentials").Logger(),
	}
}

// Load reads the cached token from the store. A missing token is not an error; the first
// request will be refused and trigger a renewal.
func (m *Manager) Load() error {
	token, err := m.store.Load()
	if errors.Is(err, ErrNoCredential) {
		m.logger.Info().Msg("no cached bearer token")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "loading cached bearer token")
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	m.logger.Debug().Msg("loaded cached bearer token")
	return nil
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Renew returns a token newer than stale. If another caller already replaced stale, the
// current token is returned without renewing again.
func (m *Manager) Renew(ctx context.Context, stale string) (string, error) {
	if current := m.Token(); current != stale {
		return current, nil
	}

	v, err, shared := m.group.Do("renew", func() (interface{}, error) {
		if current := m.Token(); current != stale {
			return current, nil
		}
		return m.renew(ctx)
	})
	if shared {
		m.logger.Debug().Msg("joined in-flight token renewal")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) renew(ctx context.Context) (string, error) {
	m.logger.Info().Msg("bearer token expired, renewing")

	if m.renewer == nil {
		prometheusRenewals.WithLabelValues("failed").Inc()
		return "", errors.Wrap(ErrRenewal, "no renewer configured")
	}

	token, err := m.renewer.Renew(ctx)
	if err == nil && token == "" {
		err = errors.New("renewer returned an empty token")
	}
	if err != nil {
		prometheusRenewals.WithLabelValues("failed").Inc()
		return "", errors.Wrapf(ErrRenewal, "%v", err)
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	if err := m.store.Store(token); err != nil {
		m.logger.Warn().Err(err).Msg("renewed token could not be persisted")
	}

	prometheusRenewals.WithLabelValues("ok").Inc()
	m.logger.Info().Msg("bearer token renewed")
	return token, nil
}
