//go:build unix

package fetchloop

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errReadiness wraps whatever the platform readiness primitive returned
// so every socket waiting on it can be failed with ReadinessError (spec
// §4.4 / §9's "Open questions" resolution: a primitive failure fails the
// whole waiting batch, a timeout is a normal no-op).
var errReadiness = errors.New("readiness primitive failed")

// pollTimeoutMillis is the bounded wait spec §4.4/§5 recommends for the
// readiness primitive.
const pollTimeoutMillis = 50

// readySet is populated by poll and tells the caller which of the
// polled fds are actually ready.
type readySet map[int]bool

// pollReady asks the platform which of fds is ready for the requested
// direction (read or write), waiting at most pollTimeoutMillis. An empty
// fds slice returns immediately with no error.
func pollReady(fds []int, forWrite bool) (readySet, error) {
	if len(fds) == 0 {
		return nil, nil
	}

	pfds := make([]unix.PollFd, len(fds))
	events := int16(unix.POLLIN)
	if forWrite {
		events = unix.POLLOUT
	}
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: events}
	}

	_, err := unix.Poll(pfds, pollTimeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return readySet{}, nil
		}
		return nil, errReadiness
	}

	ready := make(readySet, len(fds))
	for _, pfd := range pfds {
		if pfd.Revents&(events|unix.POLLERR|unix.POLLHUP) != 0 {
			ready[int(pfd.Fd)] = true
		}
	}
	return ready, nil
}
