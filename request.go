package fetchloop

import (
	"io"
	"net/url"
)

// State is a position in a Request's lifecycle (spec §4.3).
type State int

const (
	Enqueued State = iota
	WillEnableCrypto
	WillSendHeaders
	WillSendBody
	ReceivingHeaders
	ReceivingBody
	Received
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Enqueued:
		return "Enqueued"
	case WillEnableCrypto:
		return "WillEnableCrypto"
	case WillSendHeaders:
		return "WillSendHeaders"
	case WillSendBody:
		return "WillSendBody"
	case ReceivingHeaders:
		return "ReceivingHeaders"
	case ReceivingBody:
		return "ReceivingBody"
	case Received:
		return "Received"
	case Finished:
		return "Finished"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// terminal reports whether s is Finished or Failed.
func (s State) terminal() bool { return s == Finished || s == Failed }

// RequestOption configures a Request at construction time.
type RequestOption func(*Request)

// WithMethod sets the HTTP method (default "GET").
func WithMethod(method string) RequestOption {
	return func(r *Request) { r.Method = method }
}

// WithHeader adds a caller-supplied header, overriding any default on a
// case-insensitive name match (spec §4.1).
func WithHeader(name, value string) RequestOption {
	return func(r *Request) { r.Headers.Set(name, value) }
}

// WithHTTPVersion sets the wire protocol version tag, "1.0" or "1.1"
// (default "1.1").
func WithHTTPVersion(version string) RequestOption {
	return func(r *Request) { r.HTTPVersion = version }
}

// WithBody attaches an upload-body stream. The caller is responsible for
// supplying any framing headers (Content-Length or Transfer-Encoding).
func WithBody(body io.Reader) RequestOption {
	return func(r *Request) { r.Body = body }
}

// Request carries everything needed to drive one HTTP exchange (spec §3).
// A Request is created by the caller and, once enqueued, mutated only by
// the Client. It is never destroyed during the Client's lifetime so that
// event replay (scoped await queries) always has something to point at.
type Request struct {
	// ID is unique within one Client instance, monotonically assigned on
	// enqueue.
	ID uint64

	URL         *url.URL
	Method      string
	HTTPVersion string
	Headers     Headers
	Body        io.Reader

	// RedirectedFrom/RedirectedTo form a doubly linked, acyclic chain:
	// for any r, r.RedirectedFrom.RedirectedTo == r.
	RedirectedFrom *Request
	RedirectedTo   *Request

	state State
	err   *FetchError

	Response *Response

	conn *connection
}

// NewRequest parses rawURL and returns a Request ready to enqueue.
func NewRequest(rawURL string, opts ...RequestOption) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	r := &Request{
		URL:         u,
		Method:      "GET",
		HTTPVersion: "1.1",
		Headers:     make(Headers),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State returns the request's current lifecycle state.
func (r *Request) State() State { return r.state }

// Err returns the failure recorded against this request, or nil if it
// has not failed.
func (r *Request) Err() *FetchError { return r.err }

// HopCount is the length of the RedirectedFrom chain back to the
// original caller-enqueued request (spec GLOSSARY).
func (r *Request) HopCount() int {
	n := 0
	for cur := r.RedirectedFrom; cur != nil; cur = cur.RedirectedFrom {
		n++
	}
	return n
}

// root follows RedirectedFrom to the first request in the chain.
func (r *Request) root() *Request {
	cur := r
	for cur.RedirectedFrom != nil {
		cur = cur.RedirectedFrom
	}
	return cur
}

// tail follows RedirectedTo to the last request in the chain — the one
// whose events a scoped await should also surface (spec §4.4).
func (r *Request) tail() *Request {
	cur := r
	for cur.RedirectedTo != nil {
		cur = cur.RedirectedTo
	}
	return cur
}
