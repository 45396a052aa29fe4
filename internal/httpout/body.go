package httpout

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
)

// timedBody streams a response body with a deadline armed before every read,
// so a stalled peer surfaces as a body-read timeout distinct from the
// connect and first-byte phases. Closing (or draining) the body releases the
// connection through the detached driver.
type timedBody struct {
	inner   io.ReadCloser
	conn    net.Conn
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

func (b *timedBody) Read(p []byte) (int, error) {
	select {
	case <-b.done:
		return 0, io.EOF
	default:
	}

	if err := b.conn.SetReadDeadline(time.Now().Add(b.timeout)); err != nil {
		return 0, outbound.Errf(outbound.CodeProtocolError, "arming body deadline: %v", err)
	}

	n, err := b.inner.Read(p)
	switch {
	case err == nil:
		return n, nil
	case err == io.EOF:
		b.release()
		return n, io.EOF
	case isTimeout(err):
		b.release()
		return n, &outbound.HostError{
			Code:    outbound.CodeBodyReadTimeout,
			Message: "response body stalled beyond between-bytes timeout",
		}
	default:
		b.release()
		return n, &outbound.HostError{
			Code:    outbound.CodeProtocolError,
			Message: "reading response body",
			Details: err.Error(),
		}
	}
}

// Close abandons the body. The underlying connection is torn down by the
// driver goroutine, not here, so an in-flight caller is never blocked on
// connection cleanup.
func (b *timedBody) Close() error {
	b.release()
	return nil
}

func (b *timedBody) release() {
	b.once.Do(func() { close(b.done) })
}
