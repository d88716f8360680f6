package decode

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"testing"
	"time"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func deflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("flate write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate close: %v", err)
	}
	return buf.Bytes()
}

func drain(t *testing.T, d *Inflate) ([]byte, error) {
	t.Helper()
	var out []byte
	deadline := time.Now().Add(2 * time.Second)
	for {
		chunk, eof, err := d.Decode()
		out = append(out, chunk...)
		if err != nil {
			return out, err
		}
		if eof {
			return out, nil
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for inflate eof")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInflateGzipRoundTrip(t *testing.T) {
	want := []byte("Hello World")
	wire := gzipBytes(t, want)

	d := NewInflate(GzipFormat)
	defer d.Close()
	d.Feed(wire)

	got, err := drain(t, d)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestInflateRawDeflateRoundTrip(t *testing.T) {
	want := []byte("Hello World, Hello World, Hello World")
	wire := deflateBytes(t, want)

	d := NewInflate(RawDeflateFormat)
	defer d.Close()
	d.Feed(wire)

	got, err := drain(t, d)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestInflateFedIncrementally(t *testing.T) {
	want := []byte("incremental feed round trip test data")
	wire := gzipBytes(t, want)

	d := NewInflate(GzipFormat)
	defer d.Close()

	for i := 0; i < len(wire); i++ {
		d.Feed(wire[i : i+1])
	}

	got, err := drain(t, d)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPipelineChunkedThenGzip(t *testing.T) {
	want := []byte("Hello World")
	wire := gzipBytes(t, want)

	// Frame the gzip bytes as a single chunk for the chunked stage.
	chunkedWire := append([]byte{}, []byte(hexLen(len(wire))+"\r\n")...)
	chunkedWire = append(chunkedWire, wire...)
	chunkedWire = append(chunkedWire, []byte("\r\n0\r\n\r\n")...)

	p := NewPipeline(NewChunked(), NewInflate(GzipFormat))
	defer p.Close()

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	p.Feed(chunkedWire)
	for {
		out, eof, err := p.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = append(got, out...)
		if eof {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out")
		}
		time.Sleep(time.Millisecond)
	}

	if string(got) != string(want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func hexLen(n int) string {
	const hexdigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{hexdigits[n%16]}, b...)
		n /= 16
	}
	return string(b)
}
