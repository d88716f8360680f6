package fetchloop

import (
	"fmt"
	"strings"

	"github.com/watt-toolkit/fetchloop/internal/decode"
)

// buildPipeline implements spec §4.2's pipeline construction: inspect
// Transfer-Encoding then Content-Encoding, split each on commas, and
// wrap the stream head with one decoder per token in order. A token
// already applied by Transfer-Encoding is not applied again if
// Content-Encoding repeats it.
func buildPipeline(headers Headers) (*decode.Pipeline, error) {
	var stages []decode.Decoder
	applied := make(map[string]bool)

	addToken := func(token string) error {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" || applied[token] {
			return nil
		}
		switch token {
		case "chunked":
			stages = append(stages, decode.NewChunked())
		case "gzip":
			stages = append(stages, decode.NewInflate(decode.GzipFormat))
		case "deflate":
			stages = append(stages, decode.NewInflate(decode.RawDeflateFormat))
		case "identity":
			// no-op, handled by the pipeline's implicit identity base case
		default:
			return fmt.Errorf("%w: %q", errUnsupportedToken, token)
		}
		applied[token] = true
		return nil
	}

	if te, ok := headers.Get("Transfer-Encoding"); ok {
		for _, tok := range strings.Split(te, ",") {
			if err := addToken(tok); err != nil {
				return nil, err
			}
		}
	}
	if ce, ok := headers.Get("Content-Encoding"); ok {
		for _, tok := range strings.Split(ce, ",") {
			if err := addToken(tok); err != nil {
				return nil, err
			}
		}
	}

	return decode.NewPipeline(stages...), nil
}
