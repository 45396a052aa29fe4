package outbound

import (
	"errors"
	"fmt"
)

// Error codes surfaced to guests. Each backend exposes a closed subset of
// these; none of them is fatal to the host process.
const (
	// CodeDenied indicates the destination or relative request is not
	// permitted by the instance's allow-list. Never retried automatically.
	CodeDenied = "REQUEST_DENIED"

	// CodeInvalidAddress indicates a malformed destination or URI.
	CodeInvalidAddress = "INVALID_ADDRESS"

	// CodeDNSError indicates name resolution failed. A guest-initiated retry
	// may legitimately succeed.
	CodeDNSError = "DNS_ERROR"

	// CodeProhibited indicates every resolved address was removed by the
	// blocked-network set.
	CodeProhibited = "DESTINATION_PROHIBITED"

	// CodeConnectTimeout indicates the connect phase exceeded its timeout.
	CodeConnectTimeout = "CONNECT_TIMEOUT"

	// CodeConnectionRefused indicates a network-level connect failure.
	CodeConnectionRefused = "CONNECTION_REFUSED"

	// CodeTLSError indicates the TLS client handshake failed.
	CodeTLSError = "TLS_ERROR"

	// CodeProtocolError indicates a send/receive failure at the
	// application-protocol layer.
	CodeProtocolError = "PROTOCOL_ERROR"

	// CodeFirstByteTimeout indicates the peer connected but did not begin
	// responding within the first-byte timeout.
	CodeFirstByteTimeout = "FIRST_BYTE_TIMEOUT"

	// CodeBodyReadTimeout indicates a streamed response body stalled beyond
	// the between-bytes timeout.
	CodeBodyReadTimeout = "BODY_READ_TIMEOUT"

	// CodeTooManyConnections indicates the instance's connection table is
	// full. The guest should close unused handles and retry.
	CodeTooManyConnections = "TOO_MANY_CONNECTIONS"

	// CodeNoConnection indicates the connection handle is not in the table.
	CodeNoConnection = "CONNECTION_NOT_FOUND"

	// CodeTypeError indicates the backend rejected an operation because of a
	// value type mismatch.
	CodeTypeError = "TYPE_ERROR"

	// CodeBackendError indicates the destination service itself reported an
	// error. Passed through with detail, never masked as a transport error.
	CodeBackendError = "BACKEND_ERROR"
)

// HostError provides structured error information for guest-visible
// failures.
type HostError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *HostError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " - " + e.Details
	}
	return e.Code + ": " + e.Message
}

// Errf builds a HostError with a formatted message.
func Errf(code, format string, args ...any) *HostError {
	return &HostError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from err, or CodeBackendError when err is
// not a HostError.
func CodeOf(err error) string {
	var hostErr *HostError
	if errors.As(err, &hostErr) {
		return hostErr.Code
	}
	return CodeBackendError
}
