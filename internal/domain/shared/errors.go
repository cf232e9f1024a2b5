// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Every error the core returns matches exactly one of these
// through errors.Is().
var (
	ErrRoleNotPermitted      = errors.New("role not permitted")
	ErrStageAlreadyCompleted = errors.New("stage already completed")
	ErrPreconditionNotMet    = errors.New("precondition not met")
	ErrOutOfRange            = errors.New("value out of range")
	ErrNotFound              = errors.New("entity not found")
	ErrDuplicateRecord       = errors.New("duplicate record")
	ErrAlreadyCompleted      = errors.New("case already completed")
	ErrInternal              = errors.New("internal error")
	ErrInvalidInput          = errors.New("invalid input")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "workflow", "assessment", "archive"
	Op      string // Operation that failed, e.g., "CompleteStage"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Errorf builds a DomainError with a formatted message.
func Errorf(domain, op string, kind error, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, kind, fmt.Sprintf(format, args...))
}

// Internal wraps a storage or infrastructure failure. Errors that already
// carry a kind are returned unchanged so callers keep the original meaning.
func Internal(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != ErrInternal {
		return err
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError(domain, op, ErrInternal, "storage failure", err)
}

var kinds = []error{
	ErrRoleNotPermitted,
	ErrStageAlreadyCompleted,
	ErrPreconditionNotMet,
	ErrOutOfRange,
	ErrNotFound,
	ErrDuplicateRecord,
	ErrAlreadyCompleted,
	ErrInvalidInput,
	ErrInternal,
}

// KindOf returns the base kind of err. Unclassified errors are ErrInternal.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// Case registry errors
var (
	ErrCaseNotFound    = NewDomainError("caseload", "Find", ErrNotFound, "case not found")
	ErrNotCaseMember   = NewDomainError("caseload", "Authorize", ErrRoleNotPermitted, "actor is not attached to the case")
	ErrNotCaseOwner    = NewDomainError("caseload", "Authorize", ErrRoleNotPermitted, "actor does not own the case")
	ErrLinkExists      = NewDomainError("caseload", "Link", ErrDuplicateRecord, "user already linked to the case")
	ErrLinkNotFound    = NewDomainError("caseload", "Unlink", ErrNotFound, "link not found")
	ErrInvalidLinkRole = NewDomainError("caseload", "Link", ErrInvalidInput, "only doctors and parents can be linked")
)

// Stage workflow errors
var (
	ErrProgressNotFound = NewDomainError("workflow", "Find", ErrNotFound, "stage progress not found")
	ErrStageCompleted   = NewDomainError("workflow", "CompleteStage", ErrStageAlreadyCompleted, "current stage already completed")
)

// Task and assessment errors
var (
	ErrTaskNotFound    = NewDomainError("assessment", "FindTask", ErrNotFound, "task not found")
	ErrNoTasks         = NewDomainError("assessment", "Summarize", ErrPreconditionNotMet, "no tasks defined")
	ErrTasksNotScored  = NewDomainError("assessment", "Summarize", ErrPreconditionNotMet, "not all tasks are scored")
	ErrSummaryNotFound = NewDomainError("assessment", "FindSummary", ErrNotFound, "assessment summary not found")
	ErrInvalidCutoff   = NewDomainError("assessment", "Summarize", ErrOutOfRange, "cutoff must be a number between 0 and 100")
)

// Activity errors
var (
	ErrAssignmentNotFound = NewDomainError("activity", "Find", ErrNotFound, "activity assignment not found")
	ErrRecordNotFound     = NewDomainError("activity", "FindProgress", ErrNotFound, "progress record not found")
	ErrStage4Incomplete   = NewDomainError("activity", "Assign", ErrPreconditionNotMet, "assessment summary is required before assigning activities")
	ErrAssignmentInactive = NewDomainError("activity", "RecordProgress", ErrPreconditionNotMet, "assignment is not active")
	ErrDuplicateSession   = NewDomainError("activity", "RecordProgress", ErrDuplicateRecord, "progress already recorded for this date")
	ErrNotAssignmentOwner = NewDomainError("activity", "Authorize", ErrRoleNotPermitted, "only the assigning doctor can modify the assignment")
	ErrNotRecorder        = NewDomainError("activity", "Authorize", ErrRoleNotPermitted, "only the original recorder can modify the record")
)

// Evaluation errors
var (
	ErrEvaluationNotFound = NewDomainError("evaluation", "Find", ErrNotFound, "final evaluation not found")
	ErrNoEvaluation       = NewDomainError("evaluation", "Archive", ErrPreconditionNotMet, "final evaluation does not exist yet")
	ErrCaseCompleted      = NewDomainError("evaluation", "Complete", ErrAlreadyCompleted, "case is already completed")
)

// Archive errors
var (
	ErrReportNotFound   = NewDomainError("archive", "Find", ErrNotFound, "therapy session report not found")
	ErrReportExists     = NewDomainError("archive", "Create", ErrDuplicateRecord, "report for this session number already exists")
	ErrChecksumMismatch = NewDomainError("archive", "Verify", ErrInternal, "snapshot checksum mismatch")
)

// Recommendation errors
var (
	ErrRecommendationNotFound = NewDomainError("recommendation", "Find", ErrNotFound, "recommendation not found")
)

// External service errors
var (
	ErrAnalyzerUnavailable = NewDomainError("handwriting", "Analyze", ErrInternal, "handwriting analyzer is unavailable")
	ErrUploadFailed        = NewDomainError("handwriting", "Upload", ErrInternal, "failed to store handwriting image")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate checks if the error is a uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateRecord)
}
