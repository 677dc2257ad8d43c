package session

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Dialer opens the transport for one connection attempt
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTLSDialer returns a dialer that completes the TLS handshake within
// timeout
func NewTLSDialer(cfg *tls.Config, timeout time.Duration) Dialer {
	return &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second},
		Config:    cfg,
	}
}
