package e2e

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	"github.com/ulala-x/zlink"
	"github.com/ulala-x/zlink/socket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func selfSignedCert() tls.Certificate {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).ToNot(HaveOccurred())

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	Expect(err).ToNot(HaveOccurred())

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	Expect(err).ToNot(HaveOccurred())

	cert, err := tls.X509KeyPair(
		certPEM(der),
		keyPEM(priv),
	)
	Expect(err).ToNot(HaveOccurred())
	return cert
}

var _ = Describe("DEALER/ROUTER over TLS", func() {
	It("round-trips a request/reply pair over an encrypted connection", func() {
		ctx, err := zlink.NewContext(zlink.ContextOptions{})
		Expect(err).ToNot(HaveOccurred())
		defer ctx.Term()

		router, err := zlink.NewSocket(ctx, socket.TypeRouter)
		Expect(err).ToNot(HaveOccurred())
		Expect(router.SetOption(zlink.OptTLSCert, selfSignedCert())).To(Succeed())
		Expect(router.Bind("tls://127.0.0.1:*")).To(Succeed())
		last, _ := router.GetOption(zlink.OptLastEndpoint)
		addr := last.(string)

		dealer, err := zlink.NewSocket(ctx, socket.TypeDealer)
		Expect(err).ToNot(HaveOccurred())
		Expect(dealer.SetOption(zlink.OptTLSVerify, false)).To(Succeed())
		Expect(dealer.Connect("tls://" + addr)).To(Succeed())

		eventually(func() bool {
			return dealer.Send([]byte("hello"), 0) == nil
		})

		var routingID, body []byte
		eventually(func() bool {
			data, more, err := router.Recv(0)
			if err != nil {
				return false
			}
			routingID = data
			_ = more
			data2, _, err := router.Recv(0)
			if err != nil {
				return false
			}
			body = data2
			return true
		})
		Expect(body).To(Equal([]byte("hello")))

		Expect(router.Send(routingID, zlink.SndMore)).To(Succeed())
		Expect(router.Send([]byte("world"), 0)).To(Succeed())

		var reply []byte
		eventually(func() bool {
			data, _, err := dealer.Recv(0)
			if err != nil {
				return false
			}
			reply = data
			return true
		})
		Expect(reply).To(Equal([]byte("world")))
	})
})
