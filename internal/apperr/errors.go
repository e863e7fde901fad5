// Package apperr defines the sentinel error taxonomy shared by the domain
// services. The transport layer maps these to HTTP status codes; domain code
// wraps them with context via fmt.Errorf("...: %w", ...).
package apperr

import "errors"

var (
	// ErrForbidden means the caller lacks the required role or ownership.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced tenant, membership, invitation or
	// token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the operation would violate a uniqueness invariant,
	// such as a duplicate pending invitation for the same tenant and email.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState means the operation was attempted on a record in a
	// terminal or wrong state, e.g. accepting a non-pending invitation.
	ErrInvalidState = errors.New("invalid state")

	// ErrExpired means the invitation's time window has lapsed. Distinct from
	// ErrInvalidState because the remediation differs: ask for a resend.
	ErrExpired = errors.New("expired")

	// ErrInvariant means the operation would leave a tenant with zero active
	// admins.
	ErrInvariant = errors.New("invariant violation")
)
