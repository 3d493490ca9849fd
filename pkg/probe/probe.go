package probe

import (
	"context"
	"time"

	"github.com/vigilhq/vigil/pkg/types"
)

// Result is the outcome of a single probe. ErrorKind is PingErrorNone on
// success; HTTPCode is set whenever a status line was received, including
// failing ones.
type Result struct {
	ErrorKind    types.PingErrorKind
	HTTPCode     *int32
	Headers      map[string]string
	ResponseTime time.Duration
	IPAddresses  []string

	// Body holds the (truncated) response body; Screenshot is populated
	// by browser-backed probers only. Both are persisted to the blob
	// store by the caller, never to the database.
	Body       []byte
	Screenshot []byte
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool {
	return r.ErrorKind == types.PingErrorNone
}

// Signature returns the failure signature used for incident cause
// comparison.
func (r Result) Signature() types.PingSignature {
	return types.PingSignature{ErrorKind: r.ErrorKind, HTTPCode: r.HTTPCode}
}

// Prober performs HTTP probes against monitor targets.
type Prober interface {
	Ping(ctx context.Context, url string, timeout time.Duration, headers map[string]string) Result
}
