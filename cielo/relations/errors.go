package relations

import "github.com/pkg/errors"

// Outcomes of a relations request other than success. Errors returned by Client.Fetch wrap
// exactly one of these.
var (
	// ErrAuthExpired means the bearer token was refused. It triggers one renewal and retry.
	ErrAuthExpired = errors.New("bearer token expired")
	// ErrUntrackable means the service refuses to track the wallet because of its activity.
	// It is a benign empty result.
	ErrUntrackable = errors.New("wallet cannot be tracked")
	// ErrFetchFailed covers transport, decode and unexpected status failures.
	ErrFetchFailed = errors.New("fetching relations failed")
	// ErrRenewalFailed means the token could not be renewed after ErrAuthExpired.
	ErrRenewalFailed = errors.New("token renewal failed")
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUntrackable):
		return "untrackable"
	case errors.Is(err, ErrRenewalFailed):
		return "renewal_failed"
	case errors.Is(err, ErrAuthExpired):
		return "unauthorized"
	default:
		return "failed"
	}
}
