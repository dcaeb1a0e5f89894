package identity

import "errors"

// Domain errors.
var (
	// ErrNoIdentity is returned when a disclosure is attempted for a user
	// with no verified identity on file.
	ErrNoIdentity = errors.New("identity: no verified identity on file")

	// ErrNotLinked is returned when an operation requires a linked account.
	ErrNotLinked = errors.New("identity: account not linked")
)
