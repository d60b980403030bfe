package zlink

import (
	"strconv"
	"strings"

	"github.com/ulala-x/zlink/zlerr"
)

// scheme identifies the transport family an endpoint string selects (spec
// section 6.2).
type scheme string

const (
	schemeTCP    scheme = "tcp"
	schemeTLS    scheme = "tls"
	schemeIPC    scheme = "ipc"
	schemeInproc scheme = "inproc"
	schemeWS     scheme = "ws"
	schemeWSS    scheme = "wss"
)

// endpoint is a parsed address per the grammar of spec section 6.2:
//
//	tcp  : tcp://HOST:PORT[;SRC_HOST[:SRC_PORT]]
//	tls  : tls://HOST:PORT
//	ipc  : ipc://PATH | ipc://*
//	inproc: inproc://NAME
//	ws   : ws://HOST:PORT[/PATH]
//	wss  : wss://HOST:PORT[/PATH]
type endpoint struct {
	scheme scheme
	host   string // HOST for tcp/tls/ws/wss, PATH/NAME for ipc/inproc
	port   string // may be "*" for an ephemeral/wildcard bind port
	path   string // ws/wss URL path, defaults to "/"
	srcHost string
	srcPort string
}

func parseEndpoint(addr string) (endpoint, error) {
	i := strings.Index(addr, "://")
	if i < 0 {
		return endpoint{}, zlerr.New(zlerr.InvalidArgument, "endpoint missing scheme: "+addr)
	}
	sc := scheme(addr[:i])
	rest := addr[i+3:]

	switch sc {
	case schemeIPC, schemeInproc:
		return endpoint{scheme: sc, host: rest}, nil
	case schemeTCP, schemeTLS, schemeWS, schemeWSS:
		hostport := rest
		path := "/"
		var src string
		if sc == schemeTCP {
			if j := strings.Index(hostport, ";"); j >= 0 {
				src = hostport[j+1:]
				hostport = hostport[:j]
			}
		}
		if sc == schemeWS || sc == schemeWSS {
			if j := strings.Index(hostport, "/"); j >= 0 {
				path = hostport[j:]
				hostport = hostport[:j]
			}
		}
		host, port, err := splitHostPort(hostport)
		if err != nil {
			return endpoint{}, err
		}
		ep := endpoint{scheme: sc, host: host, port: port, path: path}
		if src != "" {
			sh, sp, err := splitHostPort(src)
			if err != nil {
				return endpoint{}, err
			}
			ep.srcHost, ep.srcPort = sh, sp
		}
		return ep, nil
	default:
		return endpoint{}, zlerr.New(zlerr.InvalidArgument, "unknown endpoint scheme: "+string(sc))
	}
}

func splitHostPort(hostport string) (host, port string, err error) {
	j := strings.LastIndex(hostport, ":")
	if j < 0 {
		return "", "", zlerr.New(zlerr.InvalidArgument, "endpoint missing port: "+hostport)
	}
	host, port = hostport[:j], hostport[j+1:]
	if host == "*" {
		host = "0.0.0.0"
	}
	if port != "*" {
		if _, err := strconv.Atoi(port); err != nil {
			return "", "", zlerr.New(zlerr.InvalidArgument, "endpoint bad port: "+port)
		}
	}
	return host, port, nil
}

func (e endpoint) tcpAddr() string {
	if e.port == "*" {
		return e.host + ":0"
	}
	return e.host + ":" + e.port
}

func (e endpoint) String() string {
	switch e.scheme {
	case schemeIPC, schemeInproc:
		return string(e.scheme) + "://" + e.host
	case schemeWS, schemeWSS:
		return string(e.scheme) + "://" + e.host + ":" + e.port + e.path
	default:
		return string(e.scheme) + "://" + e.host + ":" + e.port
	}
}
