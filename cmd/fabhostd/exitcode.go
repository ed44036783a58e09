package main

import "github.com/fabhost/agent/internal/chainerr"

// Exit codes per spec.md §6: 0 success, 1 validation error, 2 authentication
// error, 3 network error, 4 unexpected.
const (
	exitOK         = 0
	exitValidation = 1
	exitAuth       = 2
	exitNetwork    = 3
	exitUnexpected = 4
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	switch chainerr.KindOf(err) {
	case chainerr.Validation:
		return exitValidation
	case chainerr.Auth:
		return exitAuth
	case chainerr.Network, chainerr.Timeout, chainerr.CircuitOpen:
		return exitNetwork
	default:
		return exitUnexpected
	}
}
