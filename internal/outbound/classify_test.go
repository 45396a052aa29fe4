package outbound

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatehouse-host/gatehouse/internal/netguard"
)

// Test plan:
// 1. Test an existing host error passes through untouched
// 2. Test each failure shape maps to its guest-visible code, and that a
//    resolution that times out reports the connect phase rather than DNS

func TestClassifyDialErrorPassthrough(t *testing.T) {
	original := &HostError{Code: CodeTLSError, Message: "handshake failed"}
	classified := ClassifyDialError(fmt.Errorf("dialing: %w", original))
	assert.Same(t, original, classified)
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{
			name: "prohibited destination",
			err:  fmt.Errorf("dialing: %w", netguard.ErrProhibited),
			code: CodeProhibited,
		},
		{
			name: "missing name",
			err:  &net.DNSError{Err: "no such host", Name: "missing.test", IsNotFound: true},
			code: CodeDNSError,
		},
		{
			name: "lookup timed out",
			err:  &net.DNSError{Err: "i/o timeout", Name: "slow.test", IsTimeout: true},
			code: CodeConnectTimeout,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			code: CodeConnectTimeout,
		},
		{
			name: "anything else",
			err:  fmt.Errorf("connection reset by peer"),
			code: CodeConnectionRefused,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(ClassifyDialError(tt.err)))
		})
	}
}
