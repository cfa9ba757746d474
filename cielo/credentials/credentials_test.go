package credentials

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bearer_token.json")
	s := NewFileStore(path)

	_, err := s.Load()
	assert.True(t, errors.Is(err, ErrNoCredential))

	require.NoError(t, s.Store("tok-1"))
	token, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"BEARER_TOKEN": "tok-1"}`, string(b))

	require.NoError(t, s.Store("tok-2"))
	token, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bearer_token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoCredential))
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cielo.db")
	s, err := NewBoltStore(path, 0o600)
	require.NoError(t, err)

	_, err = s.Load()
	assert.True(t, errors.Is(err, ErrNoCredential))

	require.NoError(t, s.Store("tok"))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path, 0o600)
	require.NoError(t, err)
	defer s.Close()

	token, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

type memStore struct {
	mu     sync.Mutex
	token  string
	stored []string
	err    error
}

func (s *memStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

func (s *memStore) Store(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, token)
	if s.err != nil {
		return s.err
	}
	s.token = token
	return nil
}

func TestManagerLoad(t *testing.T) {
	m := NewManager(&memStore{token: "cached"}, nil, zerolog.Nop())
	require.NoError(t, m.Load())
	assert.Equal(t, "cached", m.Token())

	m = NewManager(&memStore{}, nil, zerolog.Nop())
	require.NoError(t, m.Load())
	assert.Empty(t, m.Token())
}

func TestManagerRenew(t *testing.T) {
	t.Run("renews and persists", func(t *testing.T) {
		store := &memStore{token: "old"}
		m := NewManager(store, RenewerFunc(func(ctx context.Context) (string, error) {
			return "new", nil
		}), zerolog.Nop())
		require.NoError(t, m.Load())

		token, err := m.Renew(context.Background(), "old")
		require.NoError(t, err)
		assert.Equal(t, "new", token)
		assert.Equal(t, "new", m.Token())
		assert.Equal(t, []string{"new"}, store.stored)
	})

	t.Run("stale caller reuses newer token", func(t *testing.T) {
		var calls int32
		m := NewManager(&memStore{}, RenewerFunc(func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "new", nil
		}), zerolog.Nop())

		_, err := m.Renew(context.Background(), "")
		require.NoError(t, err)
		token, err := m.Renew(context.Background(), "")
		require.NoError(t, err)

		assert.Equal(t, "new", token)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("concurrent failures share one renewal", func(t *testing.T) {
		var calls int32
		release := make(chan struct{})
		m := NewManager(&memStore{}, RenewerFunc(func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return "fresh", nil
		}), zerolog.Nop())

		var wg sync.WaitGroup
		results := make([]string, 10)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				token, err := m.Renew(context.Background(), "")
				assert.NoError(t, err)
				results[i] = token
			}(i)
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		for _, r := range results {
			assert.Equal(t, "fresh", r)
		}
	})

	t.Run("renewer failure", func(t *testing.T) {
		m := NewManager(&memStore{}, RenewerFunc(func(ctx context.Context) (string, error) {
			return "", errors.New("browser closed")
		}), zerolog.Nop())

		_, err := m.Renew(context.Background(), "")
		assert.True(t, errors.Is(err, ErrRenewal))
		assert.Empty(t, m.Token())
	})

	t.Run("empty token is a failure", func(t *testing.T) {
		m := NewManager(&memStore{}, RenewerFunc(func(ctx context.Context) (string, error) {
			return "", nil
		}), zerolog.Nop())

		_, err := m.Renew(context.Background(), "")
		assert.True(t, errors.Is(err, ErrRenewal))
	})

	t.Run("no renewer", func(t *testing.T) {
		m := NewManager(&memStore{}, nil, zerolog.Nop())
		_, err := m.Renew(context.Background(), "")
		assert.True(t, errors.Is(err, ErrRenewal))
	})

	t.Run("persist failure keeps the new token", func(t *testing.T) {
		store := &memStore{err: errors.New("disk full")}
		m := NewManager(store, RenewerFunc(func(ctx context.Context) (string, error) {
			return "new", nil
		}), zerolog.Nop())

		token, err := m.Renew(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "new", token)
		assert.Equal(t, "new", m.Token())
		assert.Equal(t, []string{"new"}, store.stored)
	})
}

func TestParseToken(t *testing.T) {
	assert.Equal(t, "abc", parseToken("abc\n"))
	assert.Equal(t, "abc", parseToken("launching browser\nBearer abc\n\n"))
	assert.Equal(t, "abc", parseToken("bearer abc"))
	assert.Empty(t, parseToken("\n  \n"))
}

func TestCommandRenewer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	_, err := NewCommandRenewer(nil)
	require.Error(t, err)

	r, err := NewCommandRenewer([]string{"sh", "-c", "echo capturing >&2; echo 'Bearer eyJ.token'"})
	require.NoError(t, err)
	token, err := r.Renew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "eyJ.token", token)

	r, err = NewCommandRenewer([]string{"sh", "-c", "echo boom >&2; exit 3"})
	require.NoError(t, err)
	_, err = r.Renew(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	r, err = NewCommandRenewer([]string{"sh", "-c", "true"})
	require.NoError(t, err)
	_, err = r.Renew(context.Background())
	assert.Error(t, err)
}
