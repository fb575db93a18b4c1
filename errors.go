package shx

import (
	"errors"

	"shx/internal/system"
)

// Build errors.
var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrNoShell          = system.ErrNoShell
	ErrNoQuote          = errors.New("no quote function is defined")
)

// Usage errors.
var (
	ErrDisarmed        = errors.New("inappropriate usage: build processes with a Shell instead of direct instantiation")
	ErrHalted          = errors.New("the process is halted")
	ErrNoProcess       = errors.New("trying to kill a process without creating one")
	ErrNoProcessAbort  = errors.New("trying to abort a process without creating one")
	ErrNoPID           = system.ErrNoPID
	ErrForeignSignal   = errors.New("the signal is controlled by another process")
	ErrSettled         = errors.New("the process has already settled")
	ErrSettledPipe     = errors.New("cannot pipe to a settled process")
	ErrClosedStream    = errors.New("cannot pipe to a closed stream")
	ErrAlreadyStarted  = errors.New("stdio cannot be changed after the process started")
	ErrBadPipeDest     = errors.New("unsupported pipe destination")
	ErrBlobUnsupported = errors.New("blob is not supported in this environment")
	ErrInvalidDuration = errors.New("invalid duration")
)

// ErrAborted is the abort cause when no reason is given.
var ErrAborted = errors.New("this operation was aborted")
