package cmdutil

import "github.com/fjl/midisds/sds"

// Process exit codes.
const (
	ExitOK        = 0
	ExitAborted   = 1
	ExitCancelled = 2
	ExitTimedOut  = 3
	ExitUsage     = 64
)

// ExitCode maps the terminal status of a transfer to a process exit code.
func ExitCode(s sds.Status) int {
	switch s {
	case sds.Completed:
		return ExitOK
	case sds.Cancelled:
		return ExitCancelled
	case sds.TimedOut:
		return ExitTimedOut
	default:
		return ExitAborted
	}
}
