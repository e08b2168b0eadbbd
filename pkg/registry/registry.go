package registry

import (
	"net/http"
	"time"

	"github.com/nicholas-fedor/versiontower/pkg/registry/ratelimit"
)

// DefaultRequestTimeout bounds a single registry request.
const DefaultRequestTimeout = 10 * time.Second

// NewHTTPClient returns the HTTP client shared by the registry components.
//
// Requests are throttled per host by limiters when it is non-nil. Timeouts are
// applied per request by the callers, so the client itself has none.
func NewHTTPClient(limiters *ratelimit.Limiters) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert

	if limiters == nil {
		return &http.Client{Transport: transport}
	}

	return &http.Client{Transport: limiters.RoundTripper(transport)}
}
