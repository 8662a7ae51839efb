package ssh

import "context"

// Executor is the single I/O boundary to the remote host. Every remote
// action in the pipeline goes through it, so a test double can stand in
// for a live connection.
type Executor interface {
	Exec(ctx context.Context, command string) (*ExecResult, error)
	ExecStream(ctx context.Context, command string) error
	Close() error
}
