package fetchloop

import (
	"fmt"
	"net/url"
	"strings"
)

// resolveRedirectURL implements spec §4.3's redirect URL resolution: an
// absolute Location is used verbatim; a relative one is resolved against
// the current request's scheme/host[:port].
func resolveRedirectURL(current *url.URL, location string) (*url.URL, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return url.Parse(location)
	}

	base := current.Scheme + "://" + current.Host
	var full string
	if strings.HasPrefix(location, "/") {
		full = base + location
	} else {
		full = base + "/" + location
	}
	u, err := url.Parse(full)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", errInvalidRedirect, u.Scheme)
	}
	return u, nil
}
