//go:build !unix

package fetchloop

import (
	"errors"
	"time"
)

// errReadiness is the cause recorded when a socket's fd cannot be
// obtained for the readiness check.
var errReadiness = errors.New("readiness primitive failed")

// pollReady on non-unix platforms falls back to optimistic polling: wait
// out the same bounded window spec §4.4 recommends, then report every fd
// ready. The caller's next Read or Write on a socket that is not actually
// ready blocks until it is; an I/O error fails the request.
// golang.org/x/sys/unix has no portable poll(2) binding outside unix, and
// this client targets the unix systems the rest of the pack (the
// teacher's socket/tuning_linux.go, tuning_darwin.go) builds for.
func pollReady(fds []int, forWrite bool) (readySet, error) {
	if len(fds) == 0 {
		return nil, nil
	}
	time.Sleep(pollTimeoutMillis * time.Millisecond)
	ready := make(readySet, len(fds))
	for _, fd := range fds {
		ready[fd] = true
	}
	return ready, nil
}

const pollTimeoutMillis = 50

type readySet map[int]bool
