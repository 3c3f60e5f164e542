// Package calls holds the server's call sessions and renders them as the
// live view page and its content fragment.
package calls

import (
	"time"
)

// HangupReason is why a call channel ended.
type HangupReason string

const (
	HangupNormal        HangupReason = "normal"
	HangupCanceled      HangupReason = "canceled"
	HangupBusy          HangupReason = "busy"
	HangupRedirected    HangupReason = "redirected"
	HangupInvalidNumber HangupReason = "invalidnumber"
	HangupDeclined      HangupReason = "declined"
	HangupTimeout       HangupReason = "timeout"
	HangupFailed        HangupReason = "failed"
)

// MaxNoAnswerBeforeWarn is how long an unanswered incoming call may ring
// before the summary shows a warning.
const MaxNoAnswerBeforeWarn = 30 * time.Second

// Detail is one line of a call session's detailed view.
type Detail struct {
	At   time.Time
	Text string
}

// Session is one call session as shown in the live view.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	From      string
	To        string
	Incoming  bool
	Answered  bool
	// AgentInfo describes the agent who took or placed the call.
	AgentInfo   string
	ServiceInfo string
	Hangup      HangupReason
	Details     []Detail
}

// Active reports whether the call is still in progress.
func (s *Session) Active() bool {
	return s.EndedAt.IsZero()
}

// Blocked reports whether the call was rejected as an invalid number.
func (s *Session) Blocked() bool {
	return s.Hangup == HangupInvalidNumber
}

// Error returns the hangup reason when the call did not end normally.
func (s *Session) Error() string {
	if s.Hangup == "" || s.Hangup == HangupNormal {
		return ""
	}
	return string(s.Hangup)
}

// NoAnswer returns how long an unanswered incoming call rang when that
// exceeds MaxNoAnswerBeforeWarn, and zero otherwise.
func (s *Session) NoAnswer() time.Duration {
	if !s.Incoming || s.Answered || s.Active() {
		return 0
	}
	d := s.EndedAt.Sub(s.StartedAt)
	if d <= MaxNoAnswerBeforeWarn {
		return 0
	}
	return d.Round(time.Second)
}
