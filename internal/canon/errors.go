package canon

import (
	"errors"
	"fmt"
)

// Precondition and configuration errors. Numeric edge cases are never errors.
var (
	ErrMissingAssignment   = errors.New("assignment matrix required")
	ErrMissingAgreement    = errors.New("agreement matrix required")
	ErrUnknownMode         = errors.New("unknown canonicalization mode")
	ErrInvalidTarget       = errors.New("invalid canonical target count")
	ErrNoPlotPoints        = errors.New("no plot points available")
	ErrTargetExceedsPoints = errors.New("target exceeds available plot points")
)

// MissingAgreementError reports that mode needs an agreement matrix.
func MissingAgreementError(mode string) error {
	return fmt.Errorf("%s mode requires an agreement matrix: %w", mode, ErrMissingAgreement)
}

// MissingAssignmentError reports that mode needs an assignment matrix.
func MissingAssignmentError(mode string) error {
	return fmt.Errorf("%s mode requires an assignment matrix: %w", mode, ErrMissingAssignment)
}

// TargetError is a rejected canonical target count. Error returns the
// user-facing message alone; errors.Is matches Kind.
type TargetError struct {
	Kind    error
	Message string
}

func (e *TargetError) Error() string { return e.Message }

func (e *TargetError) Unwrap() error { return e.Kind }

// ValidateTarget checks a requested canonical count against the data.
func ValidateTarget(target, points int) error {
	if target < 1 {
		return &TargetError{
			Kind:    ErrInvalidTarget,
			Message: fmt.Sprintf("Canonical category count must be at least 1 (got %d).", target),
		}
	}
	if points == 0 {
		return &TargetError{
			Kind:    ErrNoPlotPoints,
			Message: fmt.Sprintf("Cannot request %d canonical categories with no plot points available.", target),
		}
	}
	if target > points {
		return &TargetError{
			Kind:    ErrTargetExceedsPoints,
			Message: fmt.Sprintf("Cannot request %d canonical categories with only %d plot points available.", target, points),
		}
	}
	return nil
}
