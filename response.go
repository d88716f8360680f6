package fetchloop

// Response holds everything known about the reply to one Request. It is
// allocated when the first response byte of that request arrives (spec
// §3) and is mutated only by the Client.
type Response struct {
	Proto      string // e.g. "HTTP/1.1"
	StatusCode int
	Status     string // status phrase, e.g. "OK"

	// Headers is lower-cased on every key, per spec §4.1's parse rule.
	Headers Headers

	// BytesReceived is the count of decoded body bytes received so far,
	// counted as they are buffered, before a BodyChunkAvailable drain.
	BytesReceived int64

	// ContentLength is the declared total from Content-Length, or -1 if
	// absent.
	ContentLength int64

	body []byte // accumulated decoded bytes awaiting a BodyChunkAvailable drain
}

func newResponse() *Response {
	return &Response{Headers: make(Headers), ContentLength: -1}
}

// drainBody returns and clears the buffered decoded bytes. Coalescing
// multiple decoder reads into a single BodyChunkAvailable event (spec
// §4.4) falls out of simply appending to this buffer between drains.
func (resp *Response) drainBody() []byte {
	if len(resp.body) == 0 {
		return nil
	}
	out := resp.body
	resp.body = nil
	return out
}

func (resp *Response) appendBody(b []byte) {
	resp.body = append(resp.body, b...)
	resp.BytesReceived += int64(len(b))
}
