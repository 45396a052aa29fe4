package outbound

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/gatehouse-host/gatehouse/internal/netguard"
)

// ClassifyDialError maps a resolve/connect failure onto the guest-visible
// error set, shared by every backend adapter. Resolution failures stay a
// distinct DNS error; CodeProhibited is reserved for the case where the
// blocked-network filter removed every resolved address.
func ClassifyDialError(err error) error {
	var hostErr *HostError
	if errors.As(err, &hostErr) {
		return hostErr
	}

	switch {
	case errors.Is(err, netguard.ErrProhibited):
		return &HostError{
			Code:    CodeProhibited,
			Message: "all destination addresses prohibited",
		}
	case IsTimeout(err):
		// Timeout wins over the DNS check: a lookup that runs out the
		// connect window counts against the connect phase, not DNS.
		return &HostError{
			Code:    CodeConnectTimeout,
			Message: "connect phase exceeded its timeout",
		}
	case IsDNSError(err):
		return &HostError{
			Code:    CodeDNSError,
			Message: "name resolution failed",
			Details: err.Error(),
		}
	default:
		// Anything else at dial time classifies as refused, matching the
		// observable behavior guests rely on.
		return &HostError{
			Code:    CodeConnectionRefused,
			Message: "connection failed",
			Details: err.Error(),
		}
	}
}

// IsDNSError reports whether err is a name resolution failure.
func IsDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
