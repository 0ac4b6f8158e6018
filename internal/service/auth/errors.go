package auth

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is matched by every token rejection.
var ErrUnauthorized = errors.New("unauthorized")

// Common authentication errors. All of them match ErrUnauthorized.
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = fmt.Errorf("%w: invalid authentication token", ErrUnauthorized)

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = fmt.Errorf("%w: authentication token has expired", ErrUnauthorized)

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = fmt.Errorf("%w: authentication token not yet valid", ErrUnauthorized)

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = fmt.Errorf("%w: authentication token is missing", ErrUnauthorized)
)

// Issuer failures. They are not token rejections and do not match ErrUnauthorized.
var (
	// ErrIssuerTimeout indicates a call to the token issuer exceeded its deadline
	ErrIssuerTimeout = errors.New("token issuer timed out")

	// ErrIssuerUnavailable indicates the token issuer could not be reached or answered badly
	ErrIssuerUnavailable = errors.New("token issuer unavailable")
)
