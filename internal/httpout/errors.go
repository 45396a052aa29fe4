package httpout

import (
	"errors"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
)

func isTimeout(err error) bool { return outbound.IsTimeout(err) }

func classifyDialError(err error) error { return outbound.ClassifyDialError(err) }

// classifyExchangeError maps failures between request write and response
// head onto the first-byte timeout or a protocol error.
func classifyExchangeError(err error) error {
	var hostErr *outbound.HostError
	if errors.As(err, &hostErr) {
		return hostErr
	}
	if isTimeout(err) {
		return &outbound.HostError{
			Code:    outbound.CodeFirstByteTimeout,
			Message: "peer did not respond within first-byte timeout",
		}
	}
	return &outbound.HostError{
		Code:    outbound.CodeProtocolError,
		Message: "http exchange failed",
		Details: err.Error(),
	}
}
