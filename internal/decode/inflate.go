package decode

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Format selects which framing the Inflate stage expects: the gzip
// envelope (magic bytes, CRC, length trailer) or raw DEFLATE with no
// envelope, matching the "gzip"/"deflate" Content-Encoding tokens (spec
// §4.2).
type Format int

const (
	GzipFormat Format = iota
	RawDeflateFormat
)

// Inflate wraps github.com/klauspost/compress, the pack's inflate
// library, behind the Decoder contract. klauspost/compress's gzip.Reader
// and flate.Reader are built for classic blocking io.Reader chains, so
// Inflate runs the library on a private goroutine reading from a
// feedQueue (never blocks the caller) and returns decoded bytes already
// produced on each Decode call.
type Inflate struct {
	queue *feedQueue

	mu     sync.Mutex
	out    []byte
	eof    bool
	err    error
	closed bool

	done chan struct{}
}

// NewInflate constructs an Inflate decoder for the given format.
func NewInflate(format Format) *Inflate {
	inf := &Inflate{
		queue: newFeedQueue(),
		done:  make(chan struct{}),
	}
	go inf.run(format)
	return inf
}

func (inf *Inflate) run(format Format) {
	defer close(inf.done)

	var r io.Reader
	switch format {
	case GzipFormat:
		gr, err := gzip.NewReader(inf.queue)
		if err != nil {
			inf.fail(err)
			return
		}
		defer gr.Close()
		// One gzip member is one body: report eof at its trailer instead
		// of blocking on the queue for a further member.
		gr.Multistream(false)
		r = gr
	default:
		fr := flate.NewReader(inf.queue)
		defer fr.Close()
		r = fr
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			inf.append(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				inf.markEOF()
			} else {
				inf.fail(err)
			}
			return
		}
	}
}

func (inf *Inflate) append(p []byte) {
	inf.mu.Lock()
	inf.out = append(inf.out, p...)
	inf.mu.Unlock()
}

func (inf *Inflate) markEOF() {
	inf.mu.Lock()
	inf.eof = true
	inf.mu.Unlock()
}

func (inf *Inflate) fail(err error) {
	inf.mu.Lock()
	inf.err = err
	inf.mu.Unlock()
}

// Feed pushes newly-arrived compressed bytes to the background decoder.
// It never blocks.
func (inf *Inflate) Feed(p []byte) {
	inf.queue.push(p)
}

// Decode returns whatever decoded bytes the background goroutine has
// produced since the last call.
func (inf *Inflate) Decode() (out []byte, eof bool, err error) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	out, inf.out = inf.out, nil
	return out, inf.eof, inf.err
}

// FinishInput signals the background decoder that no more compressed
// bytes are coming; once it drains what's buffered it reports eof (or
// an error, if the compressed stream was truncated).
func (inf *Inflate) FinishInput() {
	inf.queue.close()
}

// Close stops the background goroutine. It must be called once the
// owning connection is torn down to avoid leaking it.
func (inf *Inflate) Close() {
	inf.mu.Lock()
	already := inf.closed
	inf.closed = true
	inf.mu.Unlock()
	if already {
		return
	}
	inf.queue.close()
	<-inf.done
}
