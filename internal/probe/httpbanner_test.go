package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestHTTPProberServerHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "Sonos/70.3-35220 (ZPS1)")
		fmt.Fprint(w, "<title>ignored</title>")
	}))
	defer srv.Close()

	prober := &HTTPProber{Port: serverPort(t, srv), Timeout: time.Second}
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Sonos Speaker", finding.Name)
	assert.Equal(t, "Sonos/70.3-35220 (ZPS1)", finding.Metadata["server"])
}

func TestHTTPProberHTMLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "lighttpd/1.4.59")
		fmt.Fprint(w, "<html><head><title>EPSON ET-2850 Series</title></head></html>")
	}))
	defer srv.Close()

	prober := &HTTPProber{Port: serverPort(t, srv), Timeout: time.Second}
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "EPSON ET-2850 Series", finding.Name)
	assert.Equal(t, prober.Port, finding.Port)
}

func TestHTTPProberConnectionRefused(t *testing.T) {
	prober := &HTTPProber{Port: closedPort(t), Timeout: time.Second}
	_, err := prober.Probe(context.Background(), "127.0.0.1")
	require.Error(t, err)
	assert.True(t, isTransportError(err))
}

func TestUPnPProberFriendlyName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/description.xml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<?xml version="1.0"?><root><device>
<friendlyName>Living Room TV</friendlyName>
<manufacturer>Samsung Electronics</manufacturer>
<modelName>QN55Q80</modelName></device></root>`)
	}))
	defer srv.Close()

	prober := &UPnPProber{Ports: []int{serverPort(t, srv)}, Paths: []string{"/description.xml"}, Timeout: time.Second}
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Living Room TV", finding.Name)
	assert.Equal(t, "Samsung Electronics", finding.Metadata["manufacturer"])
	assert.Equal(t, "QN55Q80", finding.Metadata["model"])
}

func TestUPnPProberFallsBackToModelName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<root><device><modelName>WeMo Switch</modelName></device></root>`)
	}))
	defer srv.Close()

	prober := &UPnPProber{Ports: []int{closedPort(t), serverPort(t, srv)}, Paths: []string{"/description.xml"}, Timeout: time.Second}
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "WeMo Switch", finding.Name)
}

func TestUPnPProberNoDescription(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	prober := &UPnPProber{Ports: []int{serverPort(t, srv)}, Paths: []string{"/description.xml"}, Timeout: time.Second}
	_, err := prober.Probe(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrNoMatch)
}
