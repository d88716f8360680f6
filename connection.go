package fetchloop

import (
	"crypto/tls"
	"net"
	"syscall"

	"github.com/valyala/bytebufferpool"
	"github.com/watt-toolkit/fetchloop/internal/decode"
)

// connection is the raw socket plus the scheduler's per-request I/O
// state (spec §3's Connection record). It is owned exclusively by the
// Client and torn down together with the socket when the request
// terminates.
type connection struct {
	raw net.Conn // always the underlying TCP socket
	rw  net.Conn // what header/body bytes actually go through: raw, or the tls.Conn layered on it

	tlsConn  *tls.Conn
	tlsDone  chan error // non-nil while a handshake goroutine is in flight
	dialDone chan error // non-nil while a connect goroutine is in flight

	headerBuf *bytebufferpool.ByteBuffer // accumulates bytes until "\r\n\r\n"
	leftover  []byte                     // bytes read past the header block, owed to the body pipeline

	pipeline     *decode.Pipeline // nil until headers are parsed
	chunkedBody  bool             // true when Transfer-Encoding framed the body (self-terminating)
	remainingRaw int64            // raw bytes left per Content-Length; -1 means "until socket EOF"

	writeBuf []byte // pending outbound bytes (header write or body upload), partial-write safe
	writeOff int

	uploadEOF bool
}

func newConnection() *connection {
	return &connection{remainingRaw: -1, headerBuf: bytebufferpool.Get()}
}

// fd returns the underlying file descriptor for use with the readiness
// poller, regardless of whether TLS is layered on top: the poller always
// watches the raw TCP socket, since that's what's actually readable or
// writable at the OS level.
func (c *connection) fd() (int, error) {
	sc, ok := c.raw.(syscall.Conn)
	if !ok {
		return -1, errReadiness
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	var ctrlErr error
	err = rc.Control(func(f uintptr) { fd = int(f) })
	if err != nil {
		ctrlErr = err
	}
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

func (c *connection) close() {
	if c.pipeline != nil {
		c.pipeline.Close()
	}
	if c.headerBuf != nil {
		bytebufferpool.Put(c.headerBuf)
		c.headerBuf = nil
	}
	if c.raw != nil {
		c.raw.Close()
	}
}
