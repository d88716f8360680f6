package fetchloop

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/watt-toolkit/fetchloop/internal/wire"
)

// fdsFor resolves the readiness-poller fd for each request's connection,
// skipping (and leaving out of the returned map) any request whose fd
// can't currently be obtained — the caller fails those individually so
// one bad socket doesn't block the whole batch's poll call.
func fdsFor(reqs []*Request) ([]int, map[uint64]int) {
	fds := make([]int, 0, len(reqs))
	byReq := make(map[uint64]int, len(reqs))
	for _, r := range reqs {
		fd, err := r.conn.fd()
		if err != nil {
			continue
		}
		fds = append(fds, fd)
		byReq[r.ID] = fd
	}
	return fds, byReq
}

// pollBatch polls every request's fd for the requested direction in one
// platform call (spec §4.4/§5) and returns which requests are ready.
// A primitive failure fails every request in the batch with
// ReadinessError rather than retrying.
func (c *Client) pollBatch(reqs []*Request, forWrite bool) []*Request {
	fds, byReq := fdsFor(reqs)
	ready, err := pollReady(fds, forWrite)
	if err != nil {
		for _, r := range reqs {
			c.fail(r, ReadinessError, err)
		}
		return nil
	}
	var out []*Request
	for _, r := range reqs {
		fd, ok := byReq[r.ID]
		if !ok {
			c.fail(r, ReadinessError, errReadiness)
			continue
		}
		if ready[fd] {
			out = append(out, r)
		}
	}
	return out
}

// connectBatch drives spec §4.4's batch 1: open a socket for every
// Enqueued request that doesn't have one yet, and advance ones already
// dialing once their background goroutine reports in.
func (c *Client) connectBatch(reqs []*Request) {
	for _, r := range reqs {
		if r.URL.Scheme != "http" && r.URL.Scheme != "https" {
			c.fail(r, InvalidScheme, fmt.Errorf("scheme %q", r.URL.Scheme))
			continue
		}
		if r.conn == nil {
			c.beginConnect(r)
			continue
		}
		select {
		case err := <-r.conn.dialDone:
			r.conn.dialDone = nil
			if err != nil {
				c.fail(r, ConnectError, err)
				continue
			}
			c.onConnected(r)
		default:
			// still dialing, revisit next tick
		}
	}
}

// beginConnect starts the TCP connect on a private goroutine. net.Dial
// has no non-blocking variant, so — the same bridge pattern
// tlswrap.go/inflate.go use — the dial runs off-loop and the scheduler
// only ever polls the result channel.
func (c *Client) beginConnect(r *Request) {
	conn := newConnection()
	r.conn = conn
	c.conns[r.ID] = conn

	host := r.URL.Hostname()
	port := r.URL.Port()
	if port == "" {
		if r.URL.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	addr := net.JoinHostPort(host, port)

	conn.dialDone = make(chan error, 1)
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	go func() {
		rawConn, err := dialer.Dial("tcp", addr)
		if err == nil {
			conn.raw = rawConn
		}
		conn.dialDone <- err
	}()
}

// onConnected decides whether the request needs a TLS handshake before
// it can send headers.
func (c *Client) onConnected(r *Request) {
	if r.URL.Scheme != "https" {
		r.conn.rw = r.conn.raw
		c.prepareHeaderWrite(r)
		c.transition(r, WillSendHeaders)
		return
	}
	tlsConn := tls.Client(r.conn.raw, c.tlsConfig)
	r.conn.tlsConn = tlsConn
	r.conn.rw = tlsConn
	r.conn.tlsDone = startHandshake(tlsConn)
	c.transition(r, WillEnableCrypto)
}

// tlsBatch drives batch 2: poll each in-flight handshake's channel.
func (c *Client) tlsBatch(reqs []*Request) {
	for _, r := range reqs {
		select {
		case err := <-r.conn.tlsDone:
			r.conn.tlsDone = nil
			if err != nil {
				c.fail(r, TLSError, err)
				continue
			}
			c.prepareHeaderWrite(r)
			c.transition(r, WillSendHeaders)
		default:
			// handshake still in progress
		}
	}
}

// prepareHeaderWrite serializes the request line and headers into the
// connection's write buffer (spec §4.1), ready for writeHeadersBatch to
// drain.
func (c *Client) prepareHeaderWrite(r *Request) {
	host := r.URL.Hostname()
	if port := r.URL.Port(); port != "" {
		defaultPort := "80"
		if r.URL.Scheme == "https" {
			defaultPort = "443"
		}
		if port != defaultPort {
			host = host + ":" + port
		}
	}
	rl := wire.RequestLine{
		Method:      r.Method,
		Host:        host,
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		HTTPVersion: r.HTTPVersion,
	}
	r.conn.writeBuf = wire.Serialize(rl, r.Headers)
	r.conn.writeOff = 0
}

// writeHeadersBatch drives batch 3: write pending header bytes to every
// writable socket, advancing requests whose header write completes.
func (c *Client) writeHeadersBatch(reqs []*Request) {
	for _, r := range c.pollBatch(reqs, true) {
		conn := r.conn
		n, err := conn.rw.Write(conn.writeBuf[conn.writeOff:])
		conn.writeOff += n
		if err != nil {
			c.fail(r, WriteError, err)
			continue
		}
		if conn.writeOff < len(conn.writeBuf) {
			continue // partial write, finish next tick
		}
		if r.Body != nil {
			c.transition(r, WillSendBody)
		} else {
			conn.uploadEOF = true
			c.transition(r, ReceivingHeaders)
		}
	}
}

// uploadBatch drives batch 4: pump the caller-supplied upload body to
// the socket, one buffered chunk at a time.
func (c *Client) uploadBatch(reqs []*Request) {
	for _, r := range c.pollBatch(reqs, true) {
		conn := r.conn
		if conn.writeOff < len(conn.writeBuf) {
			n, err := conn.rw.Write(conn.writeBuf[conn.writeOff:])
			conn.writeOff += n
			if err != nil {
				c.fail(r, WriteError, err)
				continue
			}
			if conn.writeOff < len(conn.writeBuf) {
				continue
			}
		}
		if conn.uploadEOF {
			c.transition(r, ReceivingHeaders)
			continue
		}
		buf := make([]byte, 32*1024)
		n, err := r.Body.Read(buf)
		if n > 0 {
			conn.writeBuf = buf[:n]
			conn.writeOff = 0
			wn, werr := conn.rw.Write(conn.writeBuf)
			conn.writeOff = wn
			if werr != nil {
				c.fail(r, WriteError, werr)
				continue
			}
		}
		if err != nil {
			if err != io.EOF {
				c.fail(r, UploadReadError, err)
				continue
			}
			conn.uploadEOF = true
			if conn.writeOff >= len(conn.writeBuf) {
				c.transition(r, ReceivingHeaders)
			}
		}
	}
}

// readHeadersBatch drives batch 5: accumulate raw bytes until the
// status line and header block are complete, then parse them and set
// up body framing.
func (c *Client) readHeadersBatch(reqs []*Request) {
	for _, r := range c.pollBatch(reqs, false) {
		conn := r.conn
		buf := make([]byte, 16*1024)
		n, err := conn.rw.Read(buf)
		if n > 0 {
			conn.headerBuf.Write(buf[:n])
			if r.Response == nil {
				r.Response = newResponse()
			}
		}
		if err != nil && err != io.EOF {
			c.fail(r, ProtocolError, err)
			continue
		}

		raw := conn.headerBuf.Bytes()
		end, ok := wire.HeaderBlockComplete(raw)
		if !ok {
			if err == io.EOF {
				c.fail(r, ProtocolError, errMissingCRLF)
			}
			continue
		}

		parsed, perr := wire.Parse(raw[:end])
		if perr != nil {
			c.fail(r, ProtocolError, perr)
			continue
		}
		conn.leftover = append([]byte(nil), raw[end:]...)

		resp := r.Response
		resp.Proto = parsed.Status.Protocol
		resp.StatusCode = parsed.Status.Code
		resp.Status = parsed.Status.Message
		resp.Headers = parsed.Headers

		c.setupBodyFraming(r)
	}
}

// setupBodyFraming implements spec §4.3's ReceivingHeaders transition
// table: a redirect candidate (3xx) goes straight to Received with no
// body read and no GotHeaders emit — that annotation belongs only to
// the "otherwise" arrow. HEAD and 204 still get GotHeaders but likewise
// never read a body (SPEC_FULL §3); a 304 is a 3xx and is already
// handled by the redirect-candidate branch. Everything else falls through to
// the Content-Length/chunked/read-until-EOF disambiguation.
func (c *Client) setupBodyFraming(r *Request) {
	conn := r.conn
	resp := r.Response

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		c.transition(r, Received)
		return
	}

	c.emit(r, GotHeaders)

	if r.Method == "HEAD" || resp.StatusCode == 204 || resp.StatusCode == 304 {
		c.transition(r, Received)
		return
	}

	pipeline, err := buildPipeline(resp.Headers)
	if err != nil {
		c.fail(r, UnsupportedEncoding, err)
		return
	}
	conn.pipeline = pipeline

	if te, ok := resp.Headers.Get("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		conn.chunkedBody = true
		conn.remainingRaw = -1
	} else if cl, ok := resp.Headers.Get("Content-Length"); ok {
		n, perr := strconv.ParseInt(cl, 10, 64)
		if perr != nil {
			c.fail(r, ProtocolError, perr)
			return
		}
		resp.ContentLength = n
		conn.remainingRaw = n
	} else {
		conn.remainingRaw = -1
	}

	if len(conn.leftover) > 0 {
		c.feedRaw(r, conn.leftover)
		conn.leftover = nil
	}
	if conn.remainingRaw == 0 {
		conn.pipeline.FinishInput()
	}
	c.drainPipeline(r)
	if r.state == ReceivingHeaders {
		c.transition(r, ReceivingBody)
	}
}

// feedRaw pushes freshly-read raw bytes into the body pipeline and
// tracks Content-Length countdown, signaling FinishInput once the
// declared length is exhausted. Chunked bodies are self-terminating and
// ignore remainingRaw entirely.
func (c *Client) feedRaw(r *Request, b []byte) {
	conn := r.conn
	conn.pipeline.Feed(b)
	if !conn.chunkedBody && conn.remainingRaw >= 0 {
		conn.remainingRaw -= int64(len(b))
		if conn.remainingRaw <= 0 {
			conn.pipeline.FinishInput()
		}
	}
}

// drainPipeline pulls whatever the pipeline has decoded so far, buffers
// it on the Response for the next BodyChunkAvailable drain, and advances
// the request to Received once the pipeline reports eof.
func (c *Client) drainPipeline(r *Request) {
	conn := r.conn
	out, eof, err := conn.pipeline.Decode()
	if err != nil {
		c.fail(r, ProtocolError, err)
		return
	}
	if len(out) > 0 {
		r.Response.appendBody(out)
		c.emit(r, BodyChunkAvailable)
	}
	if eof {
		c.transition(r, Received)
	}
}

// readBodyBatch drives batch 6: read further raw body bytes, decode
// whatever that yields, and detect completion via Content-Length
// countdown, chunked framing, or the socket's own EOF.
func (c *Client) readBodyBatch(reqs []*Request) {
	for _, r := range c.pollBatch(reqs, false) {
		conn := r.conn
		buf := make([]byte, 32*1024)
		n, err := conn.rw.Read(buf)
		if n > 0 {
			c.feedRaw(r, buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				if conn.remainingRaw > 0 {
					c.fail(r, ProtocolError, io.ErrUnexpectedEOF)
					continue
				}
				if !conn.chunkedBody && conn.remainingRaw < 0 {
					conn.pipeline.FinishInput()
				}
			} else {
				c.fail(r, ProtocolError, err)
				continue
			}
		}
		c.drainPipeline(r)
	}
}

// finalizeBatch drives batch 7: a Received request either starts a
// redirect hop or is done.
func (c *Client) finalizeBatch(reqs []*Request) {
	for _, r := range reqs {
		resp := r.Response
		if resp != nil && resp.StatusCode >= 300 && resp.StatusCode < 400 {
			if loc, ok := resp.Headers.Get("Location"); ok {
				c.doRedirect(r, loc)
				continue
			}
		}
		c.markFinished(r)
	}
}

// doRedirect implements spec §4.3: bound the hop count, resolve the
// Location header, and enqueue a child request carrying the chain
// forward. The original request is superseded, not failed or finished
// on its own account — the Redirect event is the terminal signal for
// this hop (SPEC_FULL §3: method is preserved unchanged across every
// redirect status).
func (c *Client) doRedirect(r *Request, location string) {
	if r.HopCount()+1 > c.maxRedirects {
		c.fail(r, TooManyRedirects, errTooManyRedirects)
		return
	}
	newURL, err := resolveRedirectURL(r.URL, location)
	if err != nil {
		c.fail(r, InvalidRedirectURL, err)
		return
	}

	child := &Request{
		URL:            newURL,
		Method:         r.Method,
		HTTPVersion:    r.HTTPVersion,
		Headers:        r.Headers.Clone(),
		RedirectedFrom: r,
		state:          Enqueued,
	}
	r.RedirectedTo = child
	c.nextID++
	child.ID = c.nextID
	c.requests = append(c.requests, child)

	r.state = Finished
	c.emit(r, Redirect)
	if conn := c.conns[r.ID]; conn != nil {
		conn.close()
	}
}
