package coach

import (
	"errors"

	"github.com/abhisek/codecoach/internal/session"
)

// Guard errors. An action that fails a guard sends no request and leaves
// the state untouched.
var (
	ErrNoSession          = errors.New("no active session")
	ErrBusy               = errors.New("a reply is still in progress")
	ErrTransitionInFlight = errors.New("a stage transition is already in progress")
	ErrLastStage          = errors.New("already at the last stage")
	ErrNotLastStage       = errors.New("learning can only be completed in the last stage")
	ErrAlreadyCompleted   = errors.New("learning is already completed")
	ErrNoChallenge        = errors.New("no active challenge")
	ErrEmptyInput         = errors.New("input is empty")
	ErrSessionExpired     = errors.New("session expired")
	ErrStale              = session.ErrStale
)

// Messages written to the error slot.
const (
	msgStartFailed      = "Failed to start the session. Is the tutor backend running?"
	msgSendFailed       = "Failed to send your message."
	msgTransitionFailed = "Stage transition failed"
	msgCompleteFailed   = "Failed to complete learning."
	msgExplainFailed    = "Failed to explain the concept."
	msgHintFailed       = "Failed to get a hint."
	msgFeedbackFailed   = "Failed to get code feedback."
	msgChallengeFailed  = "Failed to create a challenge."
	msgStatusFailed     = "Failed to fetch session status."
	msgSessionExpired   = "Session expired, please start learning again"
	msgUnknownStage     = "The tutor reported an unknown stage."

	// PromptSessionExpired is shown by the Confirmer when the backend no
	// longer knows the session.
	PromptSessionExpired = "Your session has expired on the server. Start a new session?"
)

// IsGuard reports whether err is a guard rejection rather than a failed
// request. Failed requests already sit in the state's error slot.
func IsGuard(err error) bool {
	for _, g := range []error{ErrNoSession, ErrBusy, ErrTransitionInFlight, ErrLastStage,
		ErrNotLastStage, ErrAlreadyCompleted, ErrNoChallenge, ErrEmptyInput} {
		if errors.Is(err, g) {
			return true
		}
	}
	return false
}
