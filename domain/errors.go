package domain

import (
	"errors"
	"fmt"
)

// ErrBranchExists is returned by branch creation when the branch is already
// present. It is recoverable per repository: batch operations log it and
// skip the repository without modifying it.
var ErrBranchExists = errors.New("branch already exists")

// ParseError indicates a malformed manifest or an incomplete component
// reference. Parse errors are fatal to the whole operation; a partial
// manifest is never used.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("parsing manifest: %v", e.Err)
	}
	return fmt.Sprintf("parsing manifest %q: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RemoteAPIError wraps an authentication, rate-limit, or network failure
// from the hosting API or the image registry. Recoverable at the batch
// level: the failed repository can be retried on its own.
type RemoteAPIError struct {
	Op  string
	Err error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote API %s: %v", e.Op, e.Err)
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }

// LocalCheckoutError wraps a filesystem or git failure on a local working
// copy.
type LocalCheckoutError struct {
	Path string
	Err  error
}

func (e *LocalCheckoutError) Error() string {
	return fmt.Sprintf("local checkout %q: %v", e.Path, e.Err)
}

func (e *LocalCheckoutError) Unwrap() error { return e.Err }
