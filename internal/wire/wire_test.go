package wire

import (
	"strings"
	"testing"
)

func TestSerializeDefaults(t *testing.T) {
	rl := RequestLine{Method: "GET", Host: "example.com", Path: "", HTTPVersion: "1.1"}
	out := string(Serialize(rl, nil))

	if !strings.HasPrefix(out, "GET / HTTP/1.1\r\n") {
		t.Fatalf("unexpected start line: %q", out)
	}
	for _, want := range []string{"Host: example.com\r\n", "Accept-Encoding: gzip\r\n", "Connection: close\r\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "\r\n\r\n") {
		t.Errorf("missing terminating blank line")
	}
}

func TestSerializePathAndQuery(t *testing.T) {
	rl := RequestLine{Method: "GET", Host: "example.com", Path: "/a/b", Query: "x=1", HTTPVersion: "1.0"}
	out := string(Serialize(rl, nil))
	if !strings.HasPrefix(out, "GET /a/b?x=1 HTTP/1.0\r\n") {
		t.Fatalf("unexpected start line: %q", out)
	}
}

func TestSerializeOverridesDefaultCaseInsensitive(t *testing.T) {
	rl := RequestLine{Method: "GET", Host: "example.com", HTTPVersion: "1.1"}
	out := string(Serialize(rl, map[string]string{"CONNECTION": "keep-alive"}))
	if !strings.Contains(out, "Connection: keep-alive\r\n") {
		t.Errorf("override not applied: %q", out)
	}
	if strings.Contains(out, "close") {
		t.Errorf("default value leaked through: %q", out)
	}
}

func TestParseStatusAndHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nX-Foo: Bar\r\n\r\n"
	parsed, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Status.Code != 200 || parsed.Status.Message != "OK" || parsed.Status.Protocol != "HTTP/1.1" {
		t.Fatalf("bad status line: %+v", parsed.Status)
	}
	if parsed.Headers["content-length"] != "5" {
		t.Errorf("content-length lookup failed: %+v", parsed.Headers)
	}
	if parsed.Headers["x-foo"] != "Bar" {
		t.Errorf("x-foo lookup failed: %+v", parsed.Headers)
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nnotaheader\r\nX-Ok: yes\r\n\r\n"
	parsed, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Headers["x-ok"] != "yes" {
		t.Errorf("expected x-ok to survive: %+v", parsed.Headers)
	}
	if len(parsed.Headers) != 1 {
		t.Errorf("expected malformed line to be skipped, got %+v", parsed.Headers)
	}
}

func TestHeaderBlockComplete(t *testing.T) {
	if _, ok := HeaderBlockComplete([]byte("HTTP/1.1 200 OK\r\n")); ok {
		t.Errorf("expected incomplete")
	}
	end, ok := HeaderBlockComplete([]byte("HTTP/1.1 200 OK\r\n\r\nbody"))
	if !ok {
		t.Fatalf("expected complete")
	}
	if end != len("HTTP/1.1 200 OK\r\n\r\n") {
		t.Errorf("unexpected end offset %d", end)
	}
}
