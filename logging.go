package fetchloop

import (
	"io"
	"log/slog"
)

// discardLogger is the Client's default: a library must never write to
// stderr uninvited. Callers opt in to visibility via WithLogger.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c *Client) logTransition(reqID uint64, from, to State) {
	c.logger.Debug("state transition", "request_id", reqID, "from", from.String(), "to", to.String())
}

func (c *Client) logFailure(reqID uint64, kind ErrorKind, err error) {
	c.logger.Warn("request failed", "request_id", reqID, "kind", kind.String(), "error", err)
}
