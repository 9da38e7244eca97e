package xrpl

import (
	"errors"
	"fmt"
)

var (
	ErrNoNodeConfigured = errors.New("xrpl: no node configured")
	ErrNoReachableNode  = errors.New("xrpl: no reachable node")
	ErrClosed           = errors.New("xrpl: connection closed")
)

// Remote error codes after which another node may still answer
var retryableCodes = map[string]bool{
	"tooBusy":          true,
	"noNetwork":        true,
	"noCurrent":        true,
	"noClosed":         true,
	"lgrNotFound":      true,
	"slowDown":         true,
	"amendmentBlocked": true,
	"notReady":         true,
}

// RemoteError is an error reported by the node in its response
type RemoteError struct {
	Command string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xrpl: %s failed with %s: %s", e.Command, e.Code, e.Message)
	}
	return fmt.Sprintf("xrpl: %s failed with %s", e.Command, e.Code)
}

// Recoverable reports whether the request may succeed on another node
func (e *RemoteError) Recoverable() bool {
	return retryableCodes[e.Code]
}
