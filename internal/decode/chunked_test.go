package decode

import "testing"

func TestChunkedSimple(t *testing.T) {
	c := NewChunked()
	c.Feed([]byte("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"))

	out, eof, err := c.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !eof {
		t.Fatalf("expected eof")
	}
	if string(out) != "Wikipedia" {
		t.Fatalf("got %q want %q", out, "Wikipedia")
	}
}

func TestChunkedPartialFeeds(t *testing.T) {
	c := NewChunked()
	var got []byte

	feed := func(s string) {
		c.Feed([]byte(s))
		out, _, err := c.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = append(got, out...)
	}

	// Split the wire bytes across many small, arbitrarily-boundaried
	// writes the way real TCP reads would arrive.
	feed("5\r\nHel")
	feed("lo\r")
	feed("\n6\r\n Wor")
	feed("ld\r\n0")
	feed("\r\n\r\n")

	if string(got) != "Hello World" {
		t.Fatalf("got %q want %q", got, "Hello World")
	}
}

func TestChunkedExtensionIgnored(t *testing.T) {
	c := NewChunked()
	c.Feed([]byte("4;foo=bar\r\nWiki\r\n0\r\n\r\n"))
	out, eof, err := c.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !eof || string(out) != "Wiki" {
		t.Fatalf("got %q eof=%v", out, eof)
	}
}

func TestChunkedMissingCRLFAfterData(t *testing.T) {
	c := NewChunked()
	c.Feed([]byte("4\r\nWikiXX"))
	if _, _, err := c.Decode(); err != ErrChunkedEncoding {
		t.Fatalf("expected ErrChunkedEncoding, got %v", err)
	}
}

func TestChunkedBadSize(t *testing.T) {
	c := NewChunked()
	c.Feed([]byte("zz\r\n"))
	if _, _, err := c.Decode(); err != ErrChunkedEncoding {
		t.Fatalf("expected ErrChunkedEncoding, got %v", err)
	}
}

func TestIdentityPassthrough(t *testing.T) {
	id := NewIdentity()
	id.Feed([]byte("hello"))
	out, eof, err := id.Decode()
	if err != nil || eof || string(out) != "hello" {
		t.Fatalf("got %q eof=%v err=%v", out, eof, err)
	}
}
