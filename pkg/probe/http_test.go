package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/pkg/types"
)

func TestPingOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vigil-monitor/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "token", r.Header.Get("X-Api-Key"))
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	result := NewHTTPProber().Ping(context.Background(), srv.URL, 5*time.Second,
		map[string]string{"X-Api-Key": "token"})

	assert.True(t, result.OK())
	require.NotNil(t, result.HTTPCode)
	assert.Equal(t, int32(200), *result.HTTPCode)
	assert.Equal(t, []byte("hello"), result.Body)
	assert.NotEmpty(t, result.IPAddresses)
	assert.Greater(t, result.ResponseTime, time.Duration(0))
}

func TestPingServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := NewHTTPProber().Ping(context.Background(), srv.URL, 5*time.Second, nil)

	assert.False(t, result.OK())
	assert.Equal(t, types.PingErrorHTTPCode, result.ErrorKind)
	require.NotNil(t, result.HTTPCode)
	assert.Equal(t, int32(500), *result.HTTPCode)
}

func TestPingRedirectsAreHealthy(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, target.URL+"/moved", http.StatusFound)
	}))
	defer target.Close()

	result := NewHTTPProber().Ping(context.Background(), target.URL, 5*time.Second, nil)
	assert.True(t, result.OK())
}

func TestPingRedirectLoop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL, http.StatusFound)
	}))
	defer srv.Close()

	result := NewHTTPProber().Ping(context.Background(), srv.URL, 5*time.Second, nil)
	assert.Equal(t, types.PingErrorRedirect, result.ErrorKind)
}

func TestPingTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	result := NewHTTPProber().Ping(context.Background(), srv.URL, 50*time.Millisecond, nil)
	assert.Equal(t, types.PingErrorTimeout, result.ErrorKind)
}

func TestPingConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	result := NewHTTPProber().Ping(context.Background(), addr, time.Second, nil)
	assert.Equal(t, types.PingErrorConnect, result.ErrorKind)
}

func TestPingRejectsMalformedTargets(t *testing.T) {
	p := NewHTTPProber()
	for _, target := range []string{"", "not a url", "ftp://example.com", "http://"} {
		result := p.Ping(context.Background(), target, time.Second, nil)
		assert.Equal(t, types.PingErrorBuilder, result.ErrorKind, "target %q", target)
	}
}

func TestPingTruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		big := make([]byte, MaxBodyBytes+4096)
		_, _ = w.Write(big)
	}))
	defer srv.Close()

	result := NewHTTPProber().Ping(context.Background(), srv.URL, 5*time.Second, nil)
	assert.True(t, result.OK())
	assert.Len(t, result.Body, MaxBodyBytes)
}

func TestSignature(t *testing.T) {
	code := int32(503)
	r := Result{ErrorKind: types.PingErrorHTTPCode, HTTPCode: &code}
	sig := r.Signature()
	assert.Equal(t, types.PingErrorHTTPCode, sig.ErrorKind)
	require.NotNil(t, sig.HTTPCode)
	assert.Equal(t, int32(503), *sig.HTTPCode)

	other := Result{ErrorKind: types.PingErrorHTTPCode, HTTPCode: &code}
	assert.True(t, sig.Equal(other.Signature()))

	timeout := Result{ErrorKind: types.PingErrorTimeout}
	assert.False(t, sig.Equal(timeout.Signature()))
}
