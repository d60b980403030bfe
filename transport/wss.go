package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// DialWSS is DialWS with a mandatory TLS config, kept as its own entry point
// so callers (the endpoint parser in the zlink package) don't need to
// remember that "wss" means "ws plus a non-nil tls.Config".
func DialWSS(ctx context.Context, endpoint string, tlsConfig *tls.Config) (*WS, error) {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	return DialWS(ctx, endpoint, tlsConfig)
}

// ListenWSS wraps ln in a TLS listener before upgrading, so the WS layer
// never sees plaintext bytes.
func ListenWSS(ln net.Listener, tlsConfig *tls.Config, path string) *WSListener {
	return ListenWS(tls.NewListener(ln, tlsConfig), path, true)
}
