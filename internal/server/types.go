// Package server defines shared helpers that are reused across client and
// hub logic.
package server

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
)

func errMissingField(name string) error {
	return errors.Wrapf(protocol.ErrMalformed, "missing %s", name)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
