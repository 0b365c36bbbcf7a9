// Package netutil provides the HTTP client shared by catalog, mirror and
// tool-release requests.
package netutil

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPClient returns a client with modern TLS settings and the default
// redirect policy. There is no client-wide timeout: archive downloads are
// bounded by their request contexts, headers by ResponseHeaderTimeout.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &http.Client{Transport: transport}
}
