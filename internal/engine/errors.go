package engine

import "fmt"

// ExitError carries a process exit status up to main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode reports the status main should exit with.
func (e *ExitError) ExitCode() int {
	return e.Code
}
