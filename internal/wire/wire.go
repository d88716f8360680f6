// Package wire implements the header codec (spec §4.1): serializing a
// request line and headers for the wire, and parsing a status line and
// header block out of the raw bytes a server sent back.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedStatusLine is returned when the status line lacks a
// protocol token followed by a numeric status code. The third token, the
// reason phrase, is optional.
var ErrMalformedStatusLine = errors.New("wire: malformed status line")

// RequestLine is everything Serialize needs to build a request's start
// line and default headers.
type RequestLine struct {
	Method      string
	Host        string // includes ":port" when the port is non-default
	Path        string // defaults to "/" when empty
	Query       string
	HTTPVersion string // "1.0" or "1.1"
}

// defaultHeaders in the order the teacher's client emits them, so a
// packet capture of this client looks like every other HTTP/1.1 client
// in the pack.
func defaultHeaders(rl RequestLine) [][2]string {
	return [][2]string{
		{"Host", rl.Host},
		{"User-Agent", "fetchloop/1.0"},
		{"Accept", "*/*"},
		{"Accept-Encoding", "gzip"},
		{"Accept-Language", "en-US,en;q=0.9"},
		{"Connection", "close"},
	}
}

// Serialize emits the request line, default headers (overridden on a
// case-insensitive name match by extra), and the terminating blank line.
// No body-framing header (Content-Length, Transfer-Encoding) is ever
// synthesized — callers uploading a body must supply those themselves.
func Serialize(rl RequestLine, extra map[string]string) []byte {
	var buf bytes.Buffer

	path := rl.Path
	if path == "" {
		path = "/"
	}
	if rl.Query != "" {
		path = path + "?" + rl.Query
	}

	fmt.Fprintf(&buf, "%s %s HTTP/%s\r\n", rl.Method, path, rl.HTTPVersion)

	written := make(map[string]bool, len(extra)+6)
	for _, kv := range defaultHeaders(rl) {
		name, def := kv[0], kv[1]
		if v, ok := lookupFold(extra, name); ok {
			fmt.Fprintf(&buf, "%s: %s\r\n", name, v)
			written[strings.ToLower(name)] = true
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", name, def)
		written[strings.ToLower(name)] = true
	}
	for name, value := range extra {
		if written[strings.ToLower(name)] {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func lookupFold(m map[string]string, name string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// StatusLine is the parsed `HTTP/<version> <code> <message>` start line
// of a response.
type StatusLine struct {
	Protocol string
	Code     int
	Message  string
}

// ParsedHeaders is the result of splitting a raw `\r\n`-terminated
// header block: a status line plus lower-cased name/value pairs (spec
// §4.1 — "names lower-cased").
type ParsedHeaders struct {
	Status  StatusLine
	Headers map[string]string
}

// Parse splits buf (terminated by the header block's trailing blank
// line) on "\r\n", parses the first line as the status line, and every
// subsequent line as a "name: value" pair. Lines without ": " are
// skipped silently, per spec §4.1.
func Parse(buf []byte) (ParsedHeaders, error) {
	lines := strings.Split(string(buf), "\r\n")

	var out ParsedHeaders
	out.Headers = make(map[string]string)

	if len(lines) == 0 || lines[0] == "" {
		return out, ErrMalformedStatusLine
	}

	status, err := parseStatusLine(lines[0])
	if err != nil {
		return out, err
	}
	out.Status = status

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue // malformed line, skipped silently per spec
		}
		name := strings.ToLower(line[:idx])
		value := line[idx+2:]
		out.Headers[name] = value
	}

	return out, nil
}

func parseStatusLine(line string) (StatusLine, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return StatusLine{}, ErrMalformedStatusLine
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return StatusLine{}, ErrMalformedStatusLine
	}
	msg := ""
	if len(parts) == 3 {
		msg = parts[2]
	}
	return StatusLine{Protocol: parts[0], Code: code, Message: msg}, nil
}

// HeaderBlockComplete reports whether buf contains the terminating
// "\r\n\r\n" that ends a status line + header block.
func HeaderBlockComplete(buf []byte) (end int, ok bool) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return 0, false
	}
	return idx + 4, true
}
