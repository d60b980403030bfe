package zlink

import (
	"crypto/tls"
	"time"

	"github.com/ulala-x/zlink/zlerr"
)

// tlsOptions bundles the TLS_* option subset of spec section 6.3.
type tlsOptions struct {
	Cert              tls.Certificate
	HasCert           bool
	CA                string // PEM path or inline PEM, caller-resolved
	Verify            bool
	RequireClientCert bool
	Hostname          string
	TrustSystem       bool
	Password          string
}

// SocketOptions bundles every gettable/settable option of spec section
// 6.3 that isn't already part of socket.Options (which covers the subset
// the socket package itself needs to see).
type SocketOptions struct {
	RcvTimeo, SndTimeo time.Duration
	HandshakeIvl       time.Duration
	HeartbeatIvl       time.Duration
	HeartbeatTimeout   time.Duration
	HeartbeatTTL       time.Duration
	MaxMsgSize         int
	IPv6               bool
	Immediate          bool
	TLS                tlsOptions
	TCPKeepAlive       bool
	TCPKeepAliveIdle   time.Duration
	TCPMaxRT           time.Duration
}

// Option identifies a socket option for SetOption/GetOption (spec section
// 6.3's authoritative subset).
type Option int

const (
	OptSndHWM Option = iota
	OptRcvHWM
	OptLinger
	OptReconnectIvl
	OptReconnectIvlMax
	OptRcvTimeo
	OptSndTimeo
	OptRoutingID
	OptSubscribe
	OptUnsubscribe
	OptRouterMandatory
	OptRouterHandover
	OptProbeRouter
	OptXPubVerbose
	OptXPubNoDrop
	OptXPubManual
	OptXPubWelcomeMsg
	OptHeartbeatIvl
	OptHeartbeatTimeout
	OptHeartbeatTTL
	OptIPv6
	OptImmediate
	OptConflate
	OptHandshakeIvl
	OptMaxMsgSize
	OptLastEndpoint
	OptTLSCert
	OptTLSCA
	OptTLSVerify
	OptTLSRequireClientCert
	OptTLSHostname
	OptTLSTrustSystem
	OptTLSPassword
	OptFD
	OptEvents
	OptType
)

// SetOption applies a settable option (spec section 6.3). Values are typed
// per-option: int options take an int, durations an int (milliseconds) or
// time.Duration, bytes a []byte, bools a bool.
func (s *Socket) SetOption(opt Option, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch opt {
	case OptSndHWM:
		s.sockOpts.SndHWM = value.(int)
	case OptRcvHWM:
		s.sockOpts.RcvHWM = value.(int)
	case OptLinger:
		s.sockOpts.Linger = value.(int)
	case OptReconnectIvl:
		s.sockOpts.ReconnectIvl = value.(int)
	case OptReconnectIvlMax:
		s.sockOpts.ReconnectMax = value.(int)
	case OptRcvTimeo:
		s.extra.RcvTimeo = msDuration(value)
	case OptSndTimeo:
		s.extra.SndTimeo = msDuration(value)
	case OptRoutingID:
		s.sockOpts.RoutingID = value.([]byte)
	case OptSubscribe:
		return s.subscribe(value.([]byte), true)
	case OptUnsubscribe:
		return s.subscribe(value.([]byte), false)
	case OptRouterMandatory:
		s.sockOpts.RouterMandatory = value.(bool)
	case OptRouterHandover:
		s.sockOpts.RouterHandover = value.(bool)
	case OptProbeRouter:
		s.sockOpts.ProbeRouter = value.(bool)
	case OptXPubVerbose:
		s.sockOpts.XPubVerbose = value.(bool)
	case OptXPubNoDrop:
		s.sockOpts.XPubNoDrop = value.(bool)
	case OptXPubManual:
		s.sockOpts.XPubManual = value.(bool)
	case OptXPubWelcomeMsg:
		s.sockOpts.XPubWelcomeMsg = value.([]byte)
	case OptHeartbeatIvl:
		s.extra.HeartbeatIvl = msDuration(value)
	case OptHeartbeatTimeout:
		s.extra.HeartbeatTimeout = msDuration(value)
	case OptHeartbeatTTL:
		s.extra.HeartbeatTTL = msDuration(value)
	case OptIPv6:
		s.extra.IPv6 = value.(bool)
	case OptImmediate:
		s.extra.Immediate = value.(bool)
	case OptConflate:
		s.sockOpts.Conflate = value.(bool)
	case OptHandshakeIvl:
		s.extra.HandshakeIvl = msDuration(value)
	case OptMaxMsgSize:
		s.extra.MaxMsgSize = value.(int)
	case OptTLSCert:
		s.extra.TLS.Cert = value.(tls.Certificate)
		s.extra.TLS.HasCert = true
	case OptTLSCA:
		s.extra.TLS.CA = value.(string)
	case OptTLSVerify:
		s.extra.TLS.Verify = value.(bool)
	case OptTLSRequireClientCert:
		s.extra.TLS.RequireClientCert = value.(bool)
	case OptTLSHostname:
		s.extra.TLS.Hostname = value.(string)
	case OptTLSTrustSystem:
		s.extra.TLS.TrustSystem = value.(bool)
	case OptTLSPassword:
		s.extra.TLS.Password = value.(string)
	default:
		return zlerr.New(zlerr.InvalidArgument, "option is not settable")
	}
	return nil
}

// GetOption reads a gettable option.
func (s *Socket) GetOption(opt Option) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch opt {
	case OptSndHWM:
		return s.sockOpts.SndHWM, nil
	case OptRcvHWM:
		return s.sockOpts.RcvHWM, nil
	case OptLinger:
		return s.sockOpts.Linger, nil
	case OptLastEndpoint:
		return s.lastEndpoint, nil
	case OptFD:
		return s.listenerFD(), nil
	case OptEvents:
		return s.events(), nil
	case OptType:
		return s.typ, nil
	default:
		return nil, zlerr.New(zlerr.InvalidArgument, "option is not gettable")
	}
}

func msDuration(v any) time.Duration {
	switch t := v.(type) {
	case time.Duration:
		return t
	case int:
		return time.Duration(t) * time.Millisecond
	default:
		return 0
	}
}
