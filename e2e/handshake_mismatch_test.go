package e2e

import (
	"github.com/ulala-x/zlink"
	"github.com/ulala-x/zlink/monitor"
	"github.com/ulala-x/zlink/socket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("handshake rejects an incompatible socket type", func() {
	It("never delivers a pipe between a PAIR and a PUB", func() {
		ctx, err := zlink.NewContext(zlink.ContextOptions{})
		Expect(err).ToNot(HaveOccurred())
		defer ctx.Term()

		pair, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		Expect(pair.Bind("tcp://127.0.0.1:*")).To(Succeed())
		last, _ := pair.GetOption(zlink.OptLastEndpoint)
		addr := last.(string)
		events := pair.Monitor()

		pub, err := zlink.NewSocket(ctx, socket.TypePub)
		Expect(err).ToNot(HaveOccurred())
		Expect(pub.Connect("tcp://" + addr)).To(Succeed())

		// PAIR only accepts PAIR (spec section 8 scenario 4): the ZMP
		// handshake's socket-type check fails, the engine reports a
		// NoCompatibleProtocol error, and the session (per its no-retry
		// rule on protocol errors) never produces a bound pipe on either
		// side, so Send on the PAIR socket never finds a peer.
		Consistently(func() error {
			return pair.Send([]byte("never"), 0)
		}, "200ms", "20ms").Should(HaveOccurred())

		// Both sockets get NoCompatibleProtocol via the monitor as
		// HANDSHAKE_FAILED_PROTOCOL, value 2 (the ZMP validation code
		// handshake.go actually sends for a socket-type mismatch).
		Eventually(events, "200ms", "10ms").Should(Receive(And(
			HaveField("EventID", monitor.HandshakeFailedProtocol),
			HaveField("Value", uint64(2)),
		)))
	})
})
