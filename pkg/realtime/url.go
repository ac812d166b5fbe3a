package realtime

import (
	"net/url"
	"strings"

	"github.com/agentstation/shopfloor/pkg/errors"
)

// SocketPath is where the dashboard server accepts socket connections.
const SocketPath = "/ws"

// SocketURL derives the socket endpoint from a page origin: http becomes ws,
// https becomes wss, and the path is replaced with SocketPath.
func SocketURL(origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", errors.WrapValidation("origin", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.NewValidationError("origin", origin, "origin must use http or https")
	}
	if u.Host == "" {
		return "", errors.NewValidationError("origin", origin, "origin has no host")
	}
	u.Path = SocketPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
