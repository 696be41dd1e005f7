package health

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a workspace without a data source or objects.
	ErrNotFound = errors.New("not found")
	// ErrFixFailed marks a fix that was rolled back.
	ErrFixFailed = errors.New("fix failed")
)

// ConnectivityError reports a tenant database that could not be reached or
// read. No partial result accompanies it.
type ConnectivityError struct {
	WorkspaceID string
	Err         error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("workspace %s: database unreachable: %v", e.WorkspaceID, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}
