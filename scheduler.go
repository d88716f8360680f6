// Package fetchloop implements a cooperative, event-driven HTTP/1.1
// client: many requests are driven concurrently from a single thread of
// execution, admitted under a concurrency cap, multiplexed over
// non-blocking sockets, and surfaced to the caller as a stream of
// discrete events (spec §1–§2).
package fetchloop

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithConcurrency caps the number of requests with an open socket at
// once (default 10).
func WithConcurrency(n int) ClientOption {
	return func(c *Client) { c.concurrency = n }
}

// WithMaxRedirects bounds the redirect hop count before TooManyRedirects
// (default 3).
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) { c.maxRedirects = n }
}

// WithLogger attaches a structured logger for state transitions and
// failures. The default discards everything.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithDialTimeout bounds the TCP connect step (default 30s).
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.dialTimeout = d }
}

// WithTLSConfig overrides the default TLS configuration used for https
// requests.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) { c.tlsConfig = cfg }
}

// Client schedules and drives many concurrent HTTP/1.1 exchanges from a
// single goroutine (spec §4.4). It owns every request, connection, and
// socket for its lifetime; the caller only ever reads request/response
// state and drives progress via AwaitNextEvent.
type Client struct {
	concurrency  int
	maxRedirects int
	logger       *slog.Logger
	dialTimeout  time.Duration
	tlsConfig    *tls.Config

	requests []*Request          // oldest first, never removed
	conns    map[uint64]*connection
	events   map[uint64]eventBits
	nextID   uint64

	cursor eventCursor
}

// NewClient constructs a Client. Defaults: concurrency 10, max 3
// redirects, a 30s dial timeout, a discarding logger, and a TLS config
// with a TLS 1.2 floor.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		concurrency:  10,
		maxRedirects: 3,
		logger:       discardLogger(),
		dialTimeout:  30 * time.Second,
		tlsConfig:    defaultTLSConfig(),
		conns:        make(map[uint64]*connection),
		events:       make(map[uint64]eventBits),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue appends one or more requests for the scheduler to drive. It
// returns immediately (spec §6).
func (c *Client) Enqueue(reqs ...*Request) {
	for _, r := range reqs {
		c.nextID++
		r.ID = c.nextID
		r.state = Enqueued
		c.requests = append(c.requests, r)
	}
}

// activeRequests implements spec §4.4's admission rule: every
// non-terminal, non-Enqueued request, plus the first K still-Enqueued
// requests where K = concurrency - |active|.
func (c *Client) activeRequests() []*Request {
	var active []*Request
	for _, r := range c.requests {
		if r.state != Enqueued && !r.state.terminal() {
			active = append(active, r)
		}
	}
	k := c.concurrency - len(active)
	if k <= 0 {
		return active
	}
	for _, r := range c.requests {
		if k == 0 {
			break
		}
		if r.state == Enqueued {
			active = append(active, r)
			k--
		}
	}
	return active
}

// byState filters a request set down to one state.
func byState(reqs []*Request, s State) []*Request {
	var out []*Request
	for _, r := range reqs {
		if r.state == s {
			out = append(out, r)
		}
	}
	return out
}

// tick runs one event_loop_tick pass (spec §4.4): each batch advances
// only the requests currently in its matching state. It returns true
// while at least one request was active at the start of the pass.
func (c *Client) tick() bool {
	active := c.activeRequests()
	if len(active) == 0 {
		return false
	}

	c.connectBatch(byState(active, Enqueued))
	c.tlsBatch(byState(active, WillEnableCrypto))
	c.writeHeadersBatch(byState(active, WillSendHeaders))
	c.uploadBatch(byState(active, WillSendBody))
	c.readHeadersBatch(byState(active, ReceivingHeaders))
	c.readBodyBatch(byState(active, ReceivingBody))
	c.finalizeBatch(byState(active, Received))

	return true
}

// transition moves r to a new state and logs the change at Debug level.
func (c *Client) transition(r *Request, to State) {
	from := r.state
	r.state = to
	c.logTransition(r.ID, from, to)
}

// emit sets the given event kind pending for r.
func (c *Client) emit(r *Request, kind EventKind) {
	c.events[r.ID] = c.events[r.ID].set(kind)
}

// fail terminates r with the given kind/cause, emits Failed, and closes
// its socket.
func (c *Client) fail(r *Request, kind ErrorKind, cause error) {
	r.err = newFetchError(r.ID, kind, cause)
	r.state = Failed
	c.logFailure(r.ID, kind, cause)
	c.emit(r, Failed_)
	if conn := c.conns[r.ID]; conn != nil {
		conn.close()
	}
}

// markFinished terminates r successfully, emits Finished, and closes
// its socket.
func (c *Client) markFinished(r *Request) {
	r.state = Finished
	c.emit(r, Finished_)
	if conn := c.conns[r.ID]; conn != nil {
		conn.close()
	}
}

// AwaitNextEvent blocks cooperatively until the next matching event is
// ready, or there is no more work (spec §6). query.Requests, when
// non-empty, restricts the scan to those requests and their redirect
// descendants — a scoped wait still sees events for the tail of a
// request's redirect chain (spec §4.4).
func (c *Client) AwaitNextEvent(query *Query) bool {
	for {
		if c.scanOnce(query) {
			return true
		}
		if !c.tick() {
			c.cursor = eventCursor{}
			return false
		}
	}
}

// scanOnce checks the requested request set for a pending event in
// fixed priority order, clears the first it finds, and populates the
// event cursor.
func (c *Client) scanOnce(query *Query) bool {
	for _, r := range c.scopeRequests(query) {
		bits := c.events[r.ID]
		for _, kind := range eventPriority {
			if !bits.has(kind) {
				continue
			}
			c.events[r.ID] = bits.clear(kind)
			cursor := eventCursor{valid: true, kind: kind, request: r}
			if kind == BodyChunkAvailable && r.Response != nil {
				cursor.chunk = r.Response.drainBody()
			}
			c.cursor = cursor
			return true
		}
	}
	return false
}

// scopeRequests expands query.Requests to include each request's
// redirect tail, or returns every request the scheduler knows about.
func (c *Client) scopeRequests(query *Query) []*Request {
	if query == nil || len(query.Requests) == 0 {
		return c.requests
	}
	seen := make(map[uint64]bool)
	var out []*Request
	for _, r := range query.Requests {
		for cur := r; cur != nil; cur = cur.RedirectedTo {
			if !seen[cur.ID] {
				seen[cur.ID] = true
				out = append(out, cur)
			}
		}
	}
	return out
}

// GetEvent returns the event kind from the last AwaitNextEvent call.
func (c *Client) GetEvent() (EventKind, bool) {
	if !c.cursor.valid {
		return 0, false
	}
	return c.cursor.kind, true
}

// GetRequest returns the request from the last AwaitNextEvent call.
func (c *Client) GetRequest() (*Request, bool) {
	if !c.cursor.valid {
		return nil, false
	}
	return c.cursor.request, true
}

// GetResponseBodyChunk returns the decoded bytes carried by the last
// BodyChunkAvailable event, if that's what the cursor holds.
func (c *Client) GetResponseBodyChunk() ([]byte, bool) {
	if !c.cursor.valid || c.cursor.kind != BodyChunkAvailable {
		return nil, false
	}
	return c.cursor.chunk, true
}

// Close tears down every socket the scheduler owns.
func (c *Client) Close() {
	for _, conn := range c.conns {
		conn.close()
	}
}
