package util

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// ProxyConfig overrides the HTTP_PROXY, HTTPS_PROXY and NO_PROXY environment variables
type ProxyConfig struct {
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// NewProxyFunc creates a proxy function based on configuration.
// If no proxy URLs are provided, falls back to environment variables.
func NewProxyFunc(cfg ProxyConfig) func(*http.Request) (*url.URL, error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}

	env := httpproxy.FromEnvironment()
	if cfg.HTTPProxy != "" {
		env.HTTPProxy = cfg.HTTPProxy
	}
	if cfg.HTTPSProxy != "" {
		env.HTTPSProxy = cfg.HTTPSProxy
	}
	if cfg.NoProxy != "" {
		env.NoProxy = cfg.NoProxy
	}

	proxy := env.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}
}

// NewHTTPClient returns a client with bounded dial and TLS handshake times
// shared by the search and model providers
func NewHTTPClient(timeout time.Duration, proxy ProxyConfig) *http.Client {
	tr := &http.Transport{
		Proxy:               NewProxyFunc(proxy),
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}
