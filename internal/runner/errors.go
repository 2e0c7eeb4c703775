package runner

import "errors"

var (
	// ErrExecutableNotFound is returned by Start and ResolveExecutable when
	// llama-server cannot be located.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrAlreadyRunning is returned by Start while a process is starting,
	// running or stopping. The running process is left untouched.
	ErrAlreadyRunning = errors.New("server is already running")

	// ErrProcessCrashed is recorded on a Handle whose process exited with a
	// failure status without being asked to stop.
	ErrProcessCrashed = errors.New("server process crashed")
)
