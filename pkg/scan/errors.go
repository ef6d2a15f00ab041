package scan

import (
	"errors"
	"fmt"
)

// Sentinel failure reasons for a scan
var (
	// ErrToolMissing indicates the scan tool binary could not be located
	ErrToolMissing = errors.New("scan tool not found")

	// ErrTimeout indicates the scan exceeded its wall-clock limit
	ErrTimeout = errors.New("scan timed out")
)

// ExecFailedError indicates the scan tool ran but exited with a non-zero status
type ExecFailedError struct {
	Stderr string
}

func (e *ExecFailedError) Error() string {
	return fmt.Sprintf("scan tool execution failed: %s", e.Stderr)
}
