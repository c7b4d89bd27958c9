package source

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is raised deterministically from the capability flags;
	// unsupported operations never reach the network.
	ErrUnsupported = errors.New("operation not supported by this source")

	// ErrUnknownItem means no data exists anywhere for the requested item,
	// e.g. a feed detail fetch for an id that was never listed.
	ErrUnknownItem = errors.New("unknown item: refresh the list first")

	// ErrLoginRequired means the source needs session cookies that the
	// credential store does not hold.
	ErrLoginRequired = errors.New("login required")
)

// ChallengeError reports a recognized anti-bot interstitial. It is not
// retryable without user action: the interactive login flow has to clear
// the challenge before this source works again.
type ChallengeError struct {
	SourceID   string
	StatusCode int
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("source %s returned a bot challenge (status %d): complete the verification in a browser and retry", e.SourceID, e.StatusCode)
}

// IsChallenge reports whether err wraps a ChallengeError.
func IsChallenge(err error) bool {
	var ce *ChallengeError
	return errors.As(err, &ce)
}
