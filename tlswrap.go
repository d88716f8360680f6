package fetchloop

import "crypto/tls"

// defaultTLSConfig matches the teacher's tls/config.go defaults (modern
// cipher suites, TLS 1.2 floor), trimmed to what a client dialing out
// needs — no certificate-manager/ACME machinery, since that's a server
// concern the teacher's tls package covers and this client doesn't.
func defaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"http/1.1"},
	}
}

// startHandshake launches the TLS handshake on a private goroutine and
// returns a channel that receives exactly one error (nil on success).
// crypto/tls exposes no async/non-blocking handshake API, so — the same
// pattern internal/decode/inflate.go uses to bridge a blocking external
// library into the cooperative loop — the handshake runs off-loop and
// the scheduler polls the channel without blocking (spec §4.3: "TLS
// handshake (repeatable while returns 'in progress')").
func startHandshake(conn *tls.Conn) chan error {
	done := make(chan error, 1)
	go func() {
		done <- conn.Handshake()
	}()
	return done
}
