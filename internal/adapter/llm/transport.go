package llm

import (
	"net"
	"net/http"
	"time"

	"secretary-ai/internal/infra/config"
)

// Pool and timeout defaults for chat-completions traffic: one or two hosts,
// long responses, connections worth keeping warm.
const (
	defaultConnTimeout         = 30 * time.Second
	defaultRespTimeout         = 120 * time.Second
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
)

// NewHTTPClient returns a client for one provider. Its overall timeout is
// the connect timeout plus the response-header timeout.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	conn := orDuration(cfg.ConnTimeout, defaultConnTimeout)
	resp := orDuration(cfg.RespTimeout, defaultRespTimeout)
	return &http.Client{
		Transport: NewPooledTransport(conn, resp, cfg.Pool),
		Timeout:   conn + resp,
	}
}

// NewPooledTransport builds a keep-alive transport. Non-positive pool
// settings take defaults.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   orDuration(connTimeout, defaultConnTimeout),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: orDuration(respTimeout, defaultRespTimeout),
		MaxIdleConns:          orInt(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   orInt(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       orInt(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       orDuration(pool.IdleConnTimeout, defaultIdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
