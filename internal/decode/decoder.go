// Package decode implements the streaming body-decoding pipeline: a
// composable chain of pull-style decoders applied to the raw socket byte
// stream as bytes arrive, without ever blocking (spec §4.2).
package decode

// Decoder is the shared contract for every stage of the pipeline
// (chunked transfer-decoding, inflate). Each stage keeps its own raw
// input buffer and decoded-output buffer; it never reads from its
// upstream itself — the Pipeline pushes new bytes in via Feed (raw
// socket bytes from the scheduler for the bottommost stage, the previous
// stage's output for every later one) and pulls decoded bytes out via
// Decode.
type Decoder interface {
	// Feed appends bytes newly arrived from upstream to the decoder's
	// internal raw buffer. It never blocks and never produces output by
	// itself.
	Feed(p []byte)

	// Decode consumes as much of the buffered raw input as currently
	// forms complete decoded output and returns it. An empty, non-EOF
	// result means the buffered input was insufficient to produce more
	// output yet — not end of stream, just "retry after the next Feed".
	// eof is true once the decoder reaches its terminal state; no
	// further Feed calls will change that.
	Decode() (out []byte, eof bool, err error)
}

// Finisher is implemented by decoder stages that need to be told
// explicitly that no more raw bytes are coming — the raw socket stream
// itself carries no end-of-message marker when there is neither
// chunked framing nor a trailing disconnect the decoder can see for
// itself. The scheduler calls this once it has consumed either the
// declared Content-Length or the socket's own EOF.
type Finisher interface {
	FinishInput()
}

// Closer is implemented by decoder stages that hold a background
// resource (Inflate's goroutine) that must be released when the owning
// connection tears down.
type Closer interface {
	Close()
}

// identity is the no-op decoder used for the Content-Encoding token
// "identity" and as the pipeline's base case.
type identity struct {
	buf      []byte
	finished bool
}

// NewIdentity returns a Decoder that passes bytes through unchanged.
func NewIdentity() Decoder { return &identity{} }

func (d *identity) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

func (d *identity) Decode() (out []byte, eof bool, err error) {
	out, d.buf = d.buf, d.buf[:0]
	return out, d.finished, nil
}

func (d *identity) FinishInput() { d.finished = true }

// Pipeline is the topmost decoder head: the composition that results
// from wrapping decoders in the order Transfer-Encoding then
// Content-Encoding tokens were declared (spec §4.2). Feeding the
// pipeline feeds only the bottommost (first-applied) stage; Decode
// pulls the bottommost stage's output through every remaining stage in
// order.
type Pipeline struct {
	stages []Decoder
}

// NewPipeline composes stages bottom-to-top: stages[0] is fed raw socket
// bytes, stages[len-1]'s Decode output is the fully decoded body.
func NewPipeline(stages ...Decoder) *Pipeline {
	if len(stages) == 0 {
		stages = []Decoder{NewIdentity()}
	}
	return &Pipeline{stages: stages}
}

// Feed pushes newly-arrived raw socket bytes into the bottom of the
// pipeline.
func (p *Pipeline) Feed(raw []byte) {
	p.stages[0].Feed(raw)
}

// Decode drains the pipeline: each stage's decoded output becomes the
// next stage's fed input, until the top stage's output is returned.
// eof is true only once the top stage reports end of stream.
func (p *Pipeline) Decode() (out []byte, eof bool, err error) {
	cur := []byte(nil)
	for i, stage := range p.stages {
		if i > 0 {
			stage.Feed(cur)
		}
		var stageEOF bool
		cur, stageEOF, err = stage.Decode()
		if err != nil {
			return nil, false, err
		}
		if i == len(p.stages)-1 {
			eof = stageEOF
		}
	}
	return cur, eof, nil
}

// Close releases any background resource held by a pipeline stage (e.g.
// Inflate's goroutine).
func (p *Pipeline) Close() {
	for _, stage := range p.stages {
		if c, ok := stage.(Closer); ok {
			c.Close()
		}
	}
}

// FinishInput tells the bottommost stage no more raw bytes will be fed.
// Chunked framing is self-terminating and ignores this; identity uses it
// to know when to report eof once its buffered input is drained, and
// Inflate (which reports eof at the end of the compressed stream on its
// own) uses it to report a truncated stream as an error.
func (p *Pipeline) FinishInput() {
	if f, ok := p.stages[0].(Finisher); ok {
		f.FinishInput()
	}
}
