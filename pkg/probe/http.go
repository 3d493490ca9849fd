package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vigilhq/vigil/pkg/types"
)

const (
	// MaxBodyBytes caps how much of a response body is retained for the
	// blob store.
	MaxBodyBytes = 1 << 20 // 1 MiB

	// MaxRedirects bounds redirect chains before the probe fails with
	// PingErrorRedirect.
	MaxRedirects = 10
)

// HTTPProber probes URLs over plain HTTP(S) using net/http.
type HTTPProber struct {
	// Transport is shared across probes; per-probe timeouts come from the
	// monitor's configured request timeout, not from the client.
	transport *http.Transport
	resolver  *net.Resolver
	userAgent string
}

// NewHTTPProber creates a prober with a shared transport
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		transport: &http.Transport{
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
		resolver:  net.DefaultResolver,
		userAgent: "vigil-monitor/1.0",
	}
}

// Ping probes the URL once with the given timeout and headers.
func (p *HTTPProber) Ping(ctx context.Context, target string, timeout time.Duration, headers map[string]string) Result {
	start := time.Now()

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Result{ErrorKind: types.PingErrorBuilder, ResponseTime: time.Since(start)}
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Resolve up front so the observed addresses land in the ping event
	// even when the request itself fails.
	ips := p.lookup(probeCtx, parsed.Hostname())

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{ErrorKind: types.PingErrorBuilder, IPAddresses: ips, ResponseTime: time.Since(start)}
	}
	req.Header.Set("User-Agent", p.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{
		Transport: p.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{
			ErrorKind:    classifyRequestError(err),
			IPAddresses:  ips,
			ResponseTime: time.Since(start),
		}
	}
	defer resp.Body.Close()

	code := int32(resp.StatusCode)
	result := Result{
		HTTPCode:     &code,
		Headers:      flattenHeaders(resp.Header),
		IPAddresses:  ips,
		ResponseTime: time.Since(start),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	result.ResponseTime = time.Since(start)
	if err != nil {
		if isTimeout(err) {
			result.ErrorKind = types.PingErrorTimeout
		} else {
			result.ErrorKind = types.PingErrorBody
		}
		return result
	}
	result.Body = body

	// 2xx and 3xx are healthy; anything else is an HTTP-level failure.
	if resp.StatusCode >= 400 {
		result.ErrorKind = types.PingErrorHTTPCode
	}
	return result
}

var errTooManyRedirects = errors.New("stopped after too many redirects")

func (p *HTTPProber) lookup(ctx context.Context, host string) []string {
	if host == "" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}
	}
	addrs, err := p.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil
	}
	return addrs
}

// classifyRequestError maps a transport error onto a ping error kind.
func classifyRequestError(err error) types.PingErrorKind {
	if isTimeout(err) {
		return types.PingErrorTimeout
	}
	if errors.Is(err, errTooManyRedirects) {
		return types.PingErrorRedirect
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return types.PingErrorConnect
		}
		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) {
			return types.PingErrorConnect
		}
		if strings.Contains(urlErr.Err.Error(), "connection refused") {
			return types.PingErrorConnect
		}
		return types.PingErrorRequest
	}
	return types.PingErrorUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}
