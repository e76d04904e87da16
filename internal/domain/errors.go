package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the core, the backend and the SDK.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrEmptyNote              = errors.New("note text is empty")
	ErrInvalidSource          = errors.New("invalid note source")
	ErrAlreadyConverted       = errors.New("note already converted")
	ErrUnsupportedEnvironment = errors.New("speech recognition is not supported in this environment")
	ErrPermissionDenied       = errors.New("microphone permission denied")
	ErrNoContent              = errors.New("meeting has no notes to analyze")
	ErrAnalysisUnavailable    = errors.New("analysis unavailable")
	ErrRestartLimit           = errors.New("dictation restart limit reached")
	ErrStaleResult            = errors.New("result belongs to a meeting that is no longer open")
	ErrNotOpen                = errors.New("meeting is not open")
)

// AnalysisHint is shown when the analysis service gave no reason.
const AnalysisHint = "check that the analysis service is running"

// TransitionError describes a rejected lifecycle move.
type TransitionError struct {
	From MeetingStatus
	To   MeetingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid meeting transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// AnalysisError carries the remote failure reason, if any.
type AnalysisError struct {
	Reason string
	Cause  error
}

func (e *AnalysisError) Error() string {
	return "analysis unavailable: " + e.Message()
}

// Message is the text to show the user.
func (e *AnalysisError) Message() string {
	if e.Reason != "" {
		return e.Reason
	}
	return AnalysisHint
}

func (e *AnalysisError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrAnalysisUnavailable, e.Cause}
	}
	return []error{ErrAnalysisUnavailable}
}

// CheckTransition enforces the meeting state machine.
func CheckTransition(from, to MeetingStatus) error {
	switch from {
	case StatusPlanned:
		if to == StatusInProgress || to == StatusCancelled {
			return nil
		}
	case StatusInProgress:
		if to == StatusCompleted || to == StatusCancelled {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}
