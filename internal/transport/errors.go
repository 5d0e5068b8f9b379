package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportClosed is returned by Write and Resize after Close
	ErrTransportClosed = errors.New("transport closed")
	// ErrInvalidSpec is wrapped by Spec.Validate failures
	ErrInvalidSpec = errors.New("invalid transport spec")
)

// SpawnError reports a local process that could not be started
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Stage is the step of a remote open that failed
type Stage string

const (
	StageCredential Stage = "credential"
	StageResolve    Stage = "resolve"
	StageDial       Stage = "dial"
	StageHandshake  Stage = "handshake"
	StageAuth       Stage = "auth"
	StageSession    Stage = "session"
	StagePTY        Stage = "pty"
	StageShell      Stage = "shell"
)

// ConnectError reports a remote session that could not be established
type ConnectError struct {
	Host  string
	Port  int
	Stage Stage
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s:%d (%s): %v", e.Host, e.Port, e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
