package main

import (
	"context"
	"errors"
)

// Exit statuses of hrmctl. Anything unclassified exits 1.
const (
	exitOK          = 0
	exitUsage       = 2
	exitConfig      = 3
	exitUpstream    = 4
	exitIO          = 5
	exitInterrupted = 130
)

// cliError carries the exit status for err.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// exitCode prefers an explicit status; a command cut short by SIGINT or
// SIGTERM exits 130.
func exitCode(err error) int {
	var ce *cliError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ce):
		return ce.code
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}
