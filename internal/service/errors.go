package service

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors wrap one of these so callers can classify with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrUpstream        = errors.New("upstream failure")
)

// ErrUnauthorized is the single outcome of every access resolution failure.
// It does not reveal whether the session, the user or the role was the problem.
var ErrUnauthorized = fmt.Errorf("%w: unauthorized", ErrForbidden)

var (
	ErrInvalidCredentials      = fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	ErrEmailTaken              = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrInvalidResetToken       = fmt.Errorf("%w: invalid or expired reset token", ErrValidation)
	ErrInvitationNotFound      = fmt.Errorf("%w: invitation not found", ErrNotFound)
	ErrInvitationExpired       = fmt.Errorf("%w: invitation expired", ErrConflict)
	ErrInvitationAccepted      = fmt.Errorf("%w: invitation already accepted", ErrConflict)
	ErrInvitationEmailMismatch = fmt.Errorf("%w: invitation was sent to a different email", ErrForbidden)
	ErrAlreadyMember           = fmt.Errorf("%w: already a member of this family", ErrConflict)
	ErrInvitationPending       = fmt.Errorf("%w: invitation already pending", ErrConflict)
	ErrLastAdmin               = fmt.Errorf("%w: family must keep at least one admin", ErrConflict)
	ErrMemberNotFound          = fmt.Errorf("%w: member not found", ErrNotFound)
	ErrBudgetExists            = fmt.Errorf("%w: budget already exists for period", ErrConflict)
	ErrCategoryExists          = fmt.Errorf("%w: category already exists", ErrConflict)
	ErrBankingDisabled         = fmt.Errorf("%w: bank aggregator not configured", ErrUpstream)
)

func notFound(what string) error {
	return fmt.Errorf("%w: %s not found", ErrNotFound, what)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
