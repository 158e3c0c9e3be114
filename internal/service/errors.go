package service

import "errors"

var (
	// ErrAuthRequired is returned by operations that need a signed-in identity.
	// Toggling without one is not an error: it requests a login instead.
	ErrAuthRequired      = errors.New("sign-in required")
	ErrStoreRead         = errors.New("store read failed")
	ErrStoreWrite        = errors.New("store write failed")
	ErrOperationInFlight = errors.New("membership change already in progress")
	ErrGuardUnavailable  = errors.New("membership guard unavailable")
	ErrInvalidCommunity  = errors.New("invalid community")
	ErrCommunityNotFound = errors.New("community not found")
	// ErrIdentityMismatch: the session is signed in as someone other than the caller.
	ErrIdentityMismatch = errors.New("session identity does not match caller")
)
