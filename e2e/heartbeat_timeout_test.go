package e2e

import (
	"net"
	"time"

	"github.com/ulala-x/zlink"
	"github.com/ulala-x/zlink/internal/wire"
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/monitor"
	"github.com/ulala-x/zlink/socket"
	"github.com/ulala-x/zlink/zlerr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// rawPeer completes the ZMP handshake by hand over a plain net.Conn, then
// falls silent: it never answers a PING, and never closes the connection.
// This is what scenario 6 (spec section 8) needs and no public socket can
// produce on its own, since every zlink.Socket answers heartbeats for as
// long as its transport stays open.
func rawPeer(conn net.Conn, socketType string) {
	hello := message.NewCommand(0, encodeHandshakeProps(map[string]string{"Socket-Type": socketType}))
	_, err := conn.Write(wire.EncodeFrame(hello, 0))
	Expect(err).ToNot(HaveOccurred())

	dec := wire.NewDecoder(1 << 20)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		Expect(err).ToNot(HaveOccurred())
		msgs, err := dec.Feed(buf[:n])
		Expect(err).ToNot(HaveOccurred())
		if len(msgs) > 0 {
			// READY received; stop talking from here on.
			return
		}
	}
}

func encodeHandshakeProps(props map[string]string) []byte {
	var out []byte
	for k, v := range props {
		out = append(out, byte(len(k)))
		out = append(out, k...)
		vlen := len(v)
		out = append(out, byte(vlen>>24), byte(vlen>>16), byte(vlen>>8), byte(vlen))
		out = append(out, v...)
	}
	return out
}

var _ = Describe("heartbeat timeout", func() {
	It("tears the pipe down when a peer stops answering PING", func() {
		ctx, err := zlink.NewContext(zlink.ContextOptions{})
		Expect(err).ToNot(HaveOccurred())
		defer ctx.Term()

		pair, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		Expect(pair.SetOption(zlink.OptHeartbeatIvl, 30)).To(Succeed())
		Expect(pair.SetOption(zlink.OptHeartbeatTimeout, 60)).To(Succeed())
		Expect(pair.Bind("tcp://127.0.0.1:*")).To(Succeed())
		last, _ := pair.GetOption(zlink.OptLastEndpoint)
		addr := last.(string)
		events := pair.Monitor()

		conn, err := net.DialTimeout("tcp", addr, time.Second)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		rawPeer(conn, "PAIR")

		// The handshake completed so PAIR considers itself attached; once a
		// PING goes unanswered past HeartbeatTimeout the engine fails and the
		// session unbinds the pipe, freeing the PAIR slot for a new peer.
		second, err := zlink.NewSocket(ctx, socket.TypePair)
		Expect(err).ToNot(HaveOccurred())
		Expect(second.SetOption(zlink.OptReconnectIvl, 20)).To(Succeed())
		Expect(second.Connect("tcp://" + addr)).To(Succeed())

		eventually(func() bool {
			return second.Send([]byte("hi"), 0) == nil
		})

		// The local monitor reports DISCONNECTED with the Timeout error
		// kind (spec section 8 scenario 6), not just the indirect
		// side-effect of the slot reopening above.
		Eventually(events, "500ms", "10ms").Should(Receive(And(
			HaveField("EventID", monitor.Disconnected),
			HaveField("Value", uint64(zlerr.Timeout)),
		)))
	})
})
